package web

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/wrangle/internal/core"
)

// WithRequestMetadata attaches the request's caller for the history journal.
// RemoteAddr has already been rewritten by TrustedRealIP.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.WithCaller(ctx, core.Caller{
		IP:        clientIP(r),
		UserAgent: r.Header.Get("User-Agent"),
	})
}

// session resolves the {id} path parameter, writing the error response
// when the session does not exist.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*core.Session, bool) {
	sess, err := s.engine.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}
	return sess, true
}

// columnParam parses the {col} path parameter.
func columnParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "col")
	col, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: column %q is not a number", core.ErrBadRequest, raw)
	}
	return col, nil
}

// parseIntParam parses an integer query parameter with a default value.
// Values below minVal are rejected.
func parseIntParam(r *http.Request, name string, defaultVal, minVal int) (int, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < minVal {
		return 0, fmt.Errorf("%w: %s must be an integer >= %d, got %q", core.ErrBadRequest, name, minVal, val)
	}
	return i, nil
}

// window reads the start and limit query parameters shared by the paging
// endpoints.
func window(r *http.Request, defaultLimit int) (start, limit int, err error) {
	if start, err = parseIntParam(r, "start", 0, 0); err != nil {
		return 0, 0, err
	}
	if limit, err = parseIntParam(r, "limit", defaultLimit, 1); err != nil {
		return 0, 0, err
	}
	return start, limit, nil
}
