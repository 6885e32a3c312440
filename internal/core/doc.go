// Package core hosts datasets behind session handles.
//
// The engine packages (frame, validate, mechanic, bulk) operate on a single
// *frame.Frame and know nothing about concurrency. This package wraps each
// frame in a [Session] whose mutex serializes every operation, and keeps the
// sessions in an [Engine] that web handlers and the CLI share.
//
// # Sessions
//
// A session starts empty. Every operation other than [Session.Load] returns
// [ErrNoDataset] until a load succeeds:
//
//	s, err := engine.Create(ctx)
//	sum, err := s.Load(ctx, file, size, "contacts.csv", nil)
//	reports, err := s.Suggestions(ctx, 2)
//	n, err := s.ApplySuggestion(ctx, 2, reports[0].Suggestion)
//
// Mutations land in the frame's patch overlay. The loaded bytes are never
// rewritten; [Session.Export] writes the merged view.
//
// # Loading
//
// Loads are gated by a [LoadLimiter] shared across sessions. Input passes
// through BOM removal and UTF-8 sanitizing before it becomes the raw buffer,
// and progress is reported through a [ProgressCallback].
//
// # Housekeeping
//
// [Engine.RunJanitor] evicts sessions idle longer than Options.IdleTimeout.
// Each session keeps a bounded [HistoryEntry] journal of its mutations,
// stamped with the [Caller] that hosts attach with [WithCaller].
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DS001-DS005: Dataset errors (no dataset, bounds, schema)
//   - VAL001-VAL004: Validation errors (types, patterns, suggestions)
//   - FILE001-FILE005: File errors (size, encoding, format)
//   - SES001-SES004: Session errors (not found, busy, cancelled)
//   - REQ001: Malformed host request
//   - RATE001: Rate limiting
//   - ERR000: Unknown error (check logs)
package core
