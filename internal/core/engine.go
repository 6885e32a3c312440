package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/wrangle/internal/config"
	"github.com/JonMunkholm/wrangle/internal/logging"
	"github.com/JonMunkholm/wrangle/internal/mechanic"
)

var (
	// ErrNoDataset is returned by every session operation before a load.
	ErrNoDataset = errors.New("no dataset loaded")

	ErrSessionNotFound   = errors.New("session not found")
	ErrTooManySessions   = errors.New("too many open sessions")
	ErrSchemaMismatch    = errors.New("schema length does not match column count")
	ErrFileTooLarge      = errors.New("file too large")
	ErrNoFile            = errors.New("no file provided")
	ErrUnknownCorrection = errors.New("unknown correction mode")

	// ErrBadRequest marks malformed input from a host: a bad path
	// parameter or an undecodable body.
	ErrBadRequest = errors.New("bad request")
)

const (
	DefaultMaxSessions = 64
	DefaultIdleTimeout = 30 * time.Minute
	DefaultMaxFileSize = 100 << 20
)

// Options configures an Engine. Zero fields take the defaults.
type Options struct {
	MaxSessions      int
	IdleTimeout      time.Duration
	MaxFileSize      int64
	HistoryLimit     int
	ProgressInterval int64
	SampleRows       int
	Workers          int // parallel column analyses in SuggestAll
	Mechanic         mechanic.Options
	Limiter          *LoadLimiter
}

// OptionsFromConfig maps validated configuration onto engine options,
// including a load limiter sized from the load section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxSessions:      cfg.Session.MaxSessions,
		IdleTimeout:      cfg.Session.IdleTimeout,
		MaxFileSize:      cfg.Load.MaxFileSize,
		HistoryLimit:     cfg.Session.HistoryLimit,
		ProgressInterval: cfg.Load.ProgressInterval,
		SampleRows:       cfg.Load.SampleRows,
		Workers:          cfg.Mechanic.Workers,
		Mechanic: mechanic.Options{
			MaxRows:          cfg.Mechanic.MaxRows,
			MaxUniqueInvalid: cfg.Mechanic.MaxUniqueInvalid,
		},
		Limiter: NewLoadLimiter(cfg.Load.MaxConcurrent, cfg.Load.MaxWaitTime),
	}
}

func (o Options) withDefaults() Options {
	if o.MaxSessions <= 0 {
		o.MaxSessions = DefaultMaxSessions
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Limiter == nil {
		o.Limiter = NewLoadLimiter(0, 0)
	}
	return o
}

// Engine owns the open sessions.
type Engine struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewEngine creates an Engine with no sessions.
func NewEngine(opts Options) *Engine {
	return &Engine{
		opts:     opts.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

// Options returns the effective options after defaults.
func (e *Engine) Options() Options { return e.opts }

// Limiter returns the load limiter shared by all sessions.
func (e *Engine) Limiter() *LoadLimiter { return e.opts.Limiter }

// Create opens an empty session.
func (e *Engine) Create(ctx context.Context) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.sessions) >= e.opts.MaxSessions {
		return nil, fmt.Errorf("%w (max %d)", ErrTooManySessions, e.opts.MaxSessions)
	}

	s := newSession(uuid.NewString(), e.opts)
	e.sessions[s.id] = s

	logging.FromContext(ctx).Info("session created", "session_id", s.id, "sessions", len(e.sessions))
	return s, nil
}

// Get looks a session up by ID.
func (e *Engine) Get(id string) (*Session, error) {
	e.mu.RLock()
	s, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Delete closes a session. Its dataset is released once any in-flight
// operation returns.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	_, ok := e.sessions[id]
	delete(e.sessions, id)
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	logging.FromContext(ctx).Info("session deleted", "session_id", id)
	return nil
}

// Count returns the number of open sessions.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// EvictIdle closes every session unused since now minus IdleTimeout and
// returns their IDs.
func (e *Engine) EvictIdle(now time.Time) []string {
	cutoff := now.Add(-e.opts.IdleTimeout)

	e.mu.Lock()
	defer e.mu.Unlock()

	var evicted []string
	for id, s := range e.sessions {
		if s.LastUsed().Before(cutoff) {
			delete(e.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// EngineStatus is a point-in-time view for health endpoints.
type EngineStatus struct {
	Sessions    int               `json:"sessions"`
	MaxSessions int               `json:"maxSessions"`
	Loads       LoadLimiterStatus `json:"loads"`
}

// Status reports session and limiter counters.
func (e *Engine) Status() EngineStatus {
	return EngineStatus{
		Sessions:    e.Count(),
		MaxSessions: e.opts.MaxSessions,
		Loads:       e.opts.Limiter.Status(),
	}
}

// SuggestAll analyzes every column of s concurrently. The session stays
// locked for the whole run; analysis only reads the frame, so the workers
// share it safely.
func (e *Engine) SuggestAll(ctx context.Context, s *Session) ([]ColumnSuggestions, error) {
	s.lock()
	defer s.unlock()

	f, err := s.dataset()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	cols := f.Columns()
	out := make([]ColumnSuggestions, len(cols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, c := range cols {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports, err := mechanic.Analyze(f, i, s.opts.Mechanic)
			if err != nil {
				return fmt.Errorf("analyze column %d: %w", i, err)
			}
			out[i] = ColumnSuggestions{Column: i, Name: c.Name, Type: c.Type, Suggestions: reports}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logging.WithFields(ctx, "session_id", s.id).Debug("all columns analyzed",
		"columns", len(cols),
		"workers", e.opts.Workers,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
