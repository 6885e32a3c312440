package web

// render.go provides response encoding and unified error handling.
//
// Every response body is JSON unless the client sends
// Accept: application/msgpack, in which case the same value is encoded as
// MessagePack using the JSON field names.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Error is mapped via core.MapError to a user-friendly message and code
//  4. The code picks the HTTP status
//  5. Technical error + context is logged with the request ID for correlation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/JonMunkholm/wrangle/internal/core"
	"github.com/JonMunkholm/wrangle/internal/logging"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeMsgpack = "application/msgpack"

	// maxBodySize bounds JSON request bodies. Loads have their own limit.
	maxBodySize = 1 << 20
)

var errRateLimited = errors.New("rate limit exceeded")

// ErrorResponse represents the structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusByCode maps error codes to HTTP statuses. Unlisted codes are 500.
var statusByCode = map[string]int{
	"DS001":   http.StatusConflict,
	"DS002":   http.StatusBadRequest,
	"DS003":   http.StatusBadRequest,
	"DS004":   http.StatusBadRequest,
	"DS005":   http.StatusBadRequest,
	"VAL001":  http.StatusBadRequest,
	"VAL002":  http.StatusBadRequest,
	"VAL003":  http.StatusBadRequest,
	"VAL004":  http.StatusBadRequest,
	"FILE001": http.StatusRequestEntityTooLarge,
	"FILE002": http.StatusUnprocessableEntity,
	"FILE003": http.StatusUnprocessableEntity,
	"FILE004": http.StatusBadRequest,
	"FILE005": http.StatusUnprocessableEntity,
	"SES001":  http.StatusNotFound,
	"SES002":  http.StatusServiceUnavailable,
	"SES003":  http.StatusServiceUnavailable,
	"SES004":  http.StatusRequestTimeout,
	"REQ001":  http.StatusBadRequest,
	"RATE001": http.StatusTooManyRequests,
}

func statusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError logs the technical error server-side and returns the mapped
// user message with a status derived from its code.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	userMsg := core.MapError(err)
	status := statusFor(userMsg.Code)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}

	respond(w, r, status, errorResponse(userMsg))
}

func errorResponse(msg core.UserMessage) ErrorResponse {
	return ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
}

// wantsMsgpack checks if the client prefers MessagePack.
func wantsMsgpack(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, contentTypeMsgpack) || strings.Contains(accept, "application/x-msgpack")
}

// respond encodes v in the negotiated format. The body is encoded before
// the header is written so an encoding failure can still become a 500.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	var buf bytes.Buffer
	contentType := contentTypeJSON

	var err error
	if wantsMsgpack(r) {
		contentType = contentTypeMsgpack
		err = encodeMsgpack(&buf, v)
	} else {
		err = json.NewEncoder(&buf).Encode(v)
	}
	if err != nil {
		slog.Error("response encode error", "error", err, "request_id", middleware.GetReqID(r.Context()))
		http.Error(w, `{"error":"encoding failed","code":"ERR000"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("response write error", "error", err)
	}
}

func encodeMsgpack(w io.Writer, v any) error {
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	return enc.Encode(v)
}

// decodeJSON reads a bounded JSON body into v. Any failure is a bad request.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", core.ErrBadRequest, err)
	}
	return nil
}
