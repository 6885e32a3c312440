package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JonMunkholm/wrangle/internal/core"
	"github.com/JonMunkholm/wrangle/internal/logging"
)

const (
	// multipartMemory is how much of a multipart form stays in memory
	// before spilling to temp files.
	multipartMemory = 32 << 20

	// multipartOverhead allows for boundaries and part headers on top of
	// the file itself.
	multipartOverhead = 1 << 20

	wsWriteWait = 10 * time.Second

	defaultFileName = "upload.csv"
)

// handleLoad replaces the session's dataset with the request's file. The
// file is either the "file" part of a multipart form or the raw body, in
// which case the name comes from the "name" query parameter.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ctx := WithRequestMetadata(r.Context(), r)
	maxSize := s.engine.Options().MaxFileSize

	var (
		body io.Reader
		size int64
		name string
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			respondError(w, r, formError(err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			respondError(w, r, fmt.Errorf("%w: %v", core.ErrNoFile, err))
			return
		}
		defer file.Close()
		body, size, name = file, header.Size, header.Filename
	} else {
		body, size = r.Body, max(r.ContentLength, 0)
		name = r.URL.Query().Get("name")
	}
	if name == "" {
		name = defaultFileName
	}

	sum, err := sess.Load(ctx, body, size, name, nil)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, sum)
}

// formError classifies a multipart parse failure.
func formError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: request body exceeds %d bytes", core.ErrFileTooLarge, maxErr.Limit)
	}
	return fmt.Errorf("%w: invalid multipart form: %v", core.ErrBadRequest, err)
}

// wsFrame is one server-to-client message on the load socket.
type wsFrame struct {
	Type     string             `json:"type"` // progress, summary or error
	Percent  int                `json:"percent"`
	Progress *core.LoadProgress `json:"progress,omitempty"`
	Summary  *core.Summary      `json:"summary,omitempty"`
	Error    *ErrorResponse     `json:"error,omitempty"`
}

// handleLoadWebSocket loads a file sent as a single binary message,
// streaming progress frames while it reads and indexes. The final frame
// carries the summary or the error, and the server then closes the socket.
//
// Query parameters: name (file name) and size (expected bytes, optional).
func (s *Server) handleLoadWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	size, err := parseIntParam(r, "size", 0, 0)
	if err != nil {
		respondError(w, r, err)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = defaultFileName
	}

	// The session adds its own ID to the lines it writes.
	fileLog := logging.FromContext(r.Context()).With("file", name)
	ctx := logging.NewContext(WithRequestMetadata(r.Context(), r), fileLog)
	log := fileLog.With("session_id", sess.ID())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Session.Load enforces the real size limit; this only stops a client
	// from streaming forever once the load has failed.
	conn.SetReadLimit(s.engine.Options().MaxFileSize + multipartOverhead)

	send := func(f wsFrame) error {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			return err
		}
		return conn.WriteJSON(f)
	}
	closeWith := func(code int, text string) {
		msg := websocket.FormatCloseMessage(code, text)
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait)); err != nil {
			log.Debug("websocket close failed", "error", err)
		}
	}
	fail := func(err error) {
		resp := errorResponse(core.MapError(err))
		if werr := send(wsFrame{Type: "error", Error: &resp}); werr != nil {
			log.Debug("websocket error frame failed", "error", werr)
		}
		closeWith(websocket.CloseUnsupportedData, resp.Code)
	}

	mt, reader, err := conn.NextReader()
	if err != nil {
		log.Warn("websocket read failed", "error", err)
		return
	}
	if mt != websocket.BinaryMessage {
		fail(fmt.Errorf("%w: expected a binary message with the file", core.ErrBadRequest))
		return
	}

	var sendErr error
	sum, err := sess.Load(ctx, reader, int64(size), name, func(p core.LoadProgress) {
		// The failure is reported once, as an error frame, below.
		if p.Phase == core.PhaseFailed || sendErr != nil {
			return
		}
		sendErr = send(wsFrame{Type: "progress", Percent: p.Percent(), Progress: &p})
	})
	if err != nil {
		fail(err)
		return
	}
	if sendErr != nil {
		log.Warn("progress frame failed", "error", sendErr)
	}

	if err := send(wsFrame{Type: "summary", Percent: 100, Summary: &sum}); err != nil {
		log.Warn("summary frame failed", "error", err)
		return
	}
	closeWith(websocket.CloseNormalClosure, "loaded")
}
