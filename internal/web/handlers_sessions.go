package web

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/wrangle/internal/core"
	"github.com/JonMunkholm/wrangle/internal/logging"
)

// defaultPageSize is the row window used when the client sends no limit.
const defaultPageSize = 100

type sessionResponse struct {
	SessionID string `json:"sessionId"`
}

// handleStatus reports session and load capacity.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, s.engine.Status())
}

// handleCreateSession opens an empty session.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.Create(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, sessionResponse{SessionID: sess.ID()})
}

// handleDeleteSession drops a session and its dataset.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSummary returns the loaded dataset's summary.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sum, err := sess.Summary(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, sum)
}

// handleRows returns a window of merged rows.
func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	start, limit, err := window(r, defaultPageSize)
	if err != nil {
		respondError(w, r, err)
		return
	}
	rows, err := sess.Rows(r.Context(), start, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{
		"start": start,
		"rows":  rows,
	})
}

// handleHistory lists journal entries, newest first.
// Optional filters: action, column, limit.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	filter := core.HistoryFilter{Action: core.HistoryAction(r.URL.Query().Get("action"))}
	if r.URL.Query().Has("column") {
		col, err := parseIntParam(r, "column", 0, 0)
		if err != nil {
			respondError(w, r, err)
			return
		}
		filter.Column = &col
	}
	limit, err := parseIntParam(r, "limit", 0, 1)
	if err != nil {
		respondError(w, r, err)
		return
	}
	filter.Limit = limit

	entries, err := sess.History(r.Context(), filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleExport streams the merged dataset as CSV.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sum, err := sess.Summary(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	name := strings.TrimSuffix(sum.FileName, ".csv")
	if name == "" {
		name = "export"
	}
	filename := fmt.Sprintf("%s_cleaned_%s.csv", name, time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))

	rows, err := sess.Export(r.Context(), w)
	if err != nil {
		// Headers are gone; the truncated body is all the client gets.
		logging.FromContext(r.Context()).Error("export failed", "session_id", sess.ID(), "rows", rows, "error", err)
		return
	}
	logging.FromContext(r.Context()).Info("export complete", "session_id", sess.ID(), "rows", rows)
}
