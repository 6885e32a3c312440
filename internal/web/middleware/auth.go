package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/wrangle/internal/config"
	"github.com/JonMunkholm/wrangle/internal/logging"
)

// APIKeyAuth checks the caller's key when cfg.RequireAPIKey is set. The key
// comes from X-API-Key or an "Authorization: Bearer" header. With no keys
// configured every request is refused; config validation normally prevents
// that.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	if !cfg.RequireAPIKey {
		return func(next http.Handler) http.Handler { return next }
	}

	// Compare digests so every comparison has the same length.
	digests := make([][sha256.Size]byte, len(cfg.APIKeys))
	for i, k := range cfg.APIKeys {
		digests[i] = sha256.Sum256([]byte(k))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestKey(r)
			log := logging.FromContext(r.Context()).With("path", r.URL.Path, "method", r.Method, "ip", r.RemoteAddr)

			switch {
			case key == "":
				log.Warn("auth: missing API key")
				writeAuthError(w, http.StatusUnauthorized, "Missing API key", "AUTH001")
			case !matchesAny(sha256.Sum256([]byte(key)), digests):
				log.Warn("auth: invalid API key")
				writeAuthError(w, http.StatusForbidden, "Invalid API key", "AUTH002")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func requestKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// matchesAny checks every digest, whichever matches, so timing does not
// reveal the position of the key.
func matchesAny(d [sha256.Size]byte, digests [][sha256.Size]byte) bool {
	valid := 0
	for i := range digests {
		valid |= subtle.ConstantTimeCompare(d[:], digests[i][:])
	}
	return valid == 1
}

// writeAuthError writes the same error shape the API handlers use.
func writeAuthError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q,"message":%q,"action":"Send a valid X-API-Key header","code":%q}`+"\n", message, message, code)
}
