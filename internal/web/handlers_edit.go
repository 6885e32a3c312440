package web

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/JonMunkholm/wrangle/internal/bulk"
	"github.com/JonMunkholm/wrangle/internal/core"
	"github.com/JonMunkholm/wrangle/internal/mechanic"
)

// handleValidateRange lists invalid cells in a row window.
func (s *Server) handleValidateRange(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	start, limit, err := window(r, defaultPageSize)
	if err != nil {
		respondError(w, r, err)
		return
	}
	cells, err := sess.ValidateRange(r.Context(), start, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{
		"invalid": cells,
		"count":   len(cells),
	})
}

// handleValidateChunk lists invalid rows per requested column.
func (s *Server) handleValidateChunk(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Columns []int `json:"columns"`
		Start   int   `json:"start"`
		Limit   int   `json:"limit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultPageSize
	}

	chunks, err := sess.ValidateChunk(r.Context(), req.Columns, req.Start, req.Limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"columns": chunks})
}

// handleValidateColumn retypes a column and returns its invalid rows.
func (s *Server) handleValidateColumn(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	col, err := columnParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req struct {
		Type string `json:"type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	rows, err := sess.ValidateColumn(WithRequestMetadata(r.Context(), r), col, req.Type)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{
		"column":      col,
		"type":        req.Type,
		"invalidRows": rows,
		"count":       len(rows),
	})
}

// handleSuggestions analyzes one column.
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	col, err := columnParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	reports, err := sess.Suggestions(r.Context(), col)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{
		"column":      col,
		"suggestions": reports,
	})
}

// handleSuggestAll analyzes every column in parallel.
func (s *Server) handleSuggestAll(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	all, err := s.engine.SuggestAll(r.Context(), sess)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"columns": all})
}

// handleApplySuggestion applies a suggestion in its wire form, as returned
// by the suggestion endpoints: {"kind": ..., "params": {...}}.
func (s *Server) handleApplySuggestion(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	col, err := columnParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req struct {
		Kind   mechanic.Kind   `json:"kind"`
		Params json.RawMessage `json:"params"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	sg, err := mechanic.Decode(req.Kind, req.Params)
	if err != nil {
		respondError(w, r, err)
		return
	}

	changed, err := sess.ApplySuggestion(WithRequestMetadata(r.Context(), r), col, sg)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{
		"kind":         req.Kind,
		"cellsChanged": changed,
	})
}

// handleBulk runs a find/replace or regex action over a column. An omitted
// or zero limit covers every row from start.
func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	col, err := columnParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req struct {
		Action json.RawMessage `json:"action"`
		Start  int             `json:"start"`
		Limit  int             `json:"limit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	action, err := bulk.ParseRequest(req.Action)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if req.Limit <= 0 {
		req.Limit = math.MaxInt
	}

	changed, err := sess.ApplyBulk(WithRequestMetadata(r.Context(), r), col, action, req.Start, req.Limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"cellsChanged": changed})
}

// handleCorrection clears invalid cells or reverts every edit in a column.
func (s *Server) handleCorrection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	col, err := columnParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	mode, err := core.ParseCorrectionMode(req.Mode)
	if err != nil {
		respondError(w, r, err)
		return
	}

	changed, err := sess.ApplyCorrection(WithRequestMetadata(r.Context(), r), col, mode)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{
		"mode":         mode,
		"cellsChanged": changed,
	})
}

// handleUpdateCell overlays one cell.
func (s *Server) handleUpdateCell(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Row   int    `json:"row"`
		Col   int    `json:"col"`
		Value string `json:"value"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	patches, err := sess.UpdateCell(WithRequestMetadata(r.Context(), r), req.Row, req.Col, req.Value)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"patches": patches})
}

// handleUpdateSchema retypes every column at once.
func (s *Server) handleUpdateSchema(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Types []string `json:"types"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	changed, err := sess.UpdateSchema(WithRequestMetadata(r.Context(), r), req.Types)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"changed": changed})
}
