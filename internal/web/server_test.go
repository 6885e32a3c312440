package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/JonMunkholm/wrangle/internal/config"
	"github.com/JonMunkholm/wrangle/internal/core"
	"github.com/JonMunkholm/wrangle/internal/mechanic"
)

const contacts = "name,age,email\n" +
	"Ann,34,ann@example.com\n" +
	"Bob, 41 ,bob@example.com\n" +
	"Cy,29,cy @example.com\n" +
	"Di,,di@example.com\n"

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{RequestTimeout: 5 * time.Second},
		Security: config.SecurityConfig{EnableCSP: true},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, opts core.Options) *Server {
	t.Helper()
	s := NewServer(core.NewEngine(opts), cfg)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, h http.Handler, method, path string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp sessionResponse
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func loadedSession(t *testing.T, h http.Handler) string {
	t.Helper()
	id := createSession(t, h)
	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/load?name=contacts.csv", strings.NewReader(contacts),
		"Content-Type", "text/csv")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return id
}

func jsonBody(v any) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func TestServer_SessionLifecycle(t *testing.T) {
	h := newTestServer(t, testConfig(), core.Options{}).Router()

	id := createSession(t, h)

	rec := do(t, h, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status core.EngineStatus
	decodeBody(t, rec, &status)
	assert.Equal(t, 1, status.Sessions)

	rec = do(t, h, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var errResp ErrorResponse
	decodeBody(t, rec, &errResp)
	assert.Equal(t, "SES001", errResp.Code)
}

func TestServer_NoDatasetConflict(t *testing.T) {
	h := newTestServer(t, testConfig(), core.Options{}).Router()
	id := createSession(t, h)

	rec := do(t, h, http.MethodGet, "/api/sessions/"+id+"/rows", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var errResp ErrorResponse
	decodeBody(t, rec, &errResp)
	assert.Equal(t, "DS001", errResp.Code)
	assert.Equal(t, "Load a CSV file first", errResp.Action)
}

func TestServer_LoadRawBody(t *testing.T) {
	h := newTestServer(t, testConfig(), core.Options{}).Router()
	id := loadedSession(t, h)

	rec := do(t, h, http.MethodGet, "/api/sessions/"+id+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sum core.Summary
	decodeBody(t, rec, &sum)
	assert.Equal(t, 4, sum.RowCount)
	assert.Equal(t, "contacts.csv", sum.FileName)
	require.Len(t, sum.Columns, 3)
	assert.Equal(t, "email", sum.Columns[2].Name)

	rec = do(t, h, http.MethodGet, "/api/sessions/"+id+"/rows?start=1&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Start int           `json:"start"`
		Rows  []core.Record `json:"rows"`
	}
	decodeBody(t, rec, &page)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, "Bob", page.Rows[0]["name"])
	assert.Equal(t, "Cy", page.Rows[1]["name"])
}

func TestServer_LoadMultipart(t *testing.T) {
	h := newTestServer(t, testConfig(), core.Options{}).Router()
	id := createSession(t, h)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "people.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(contacts))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/load", &buf, "Content-Type", mw.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sum core.Summary
	decodeBody(t, rec, &sum)
	assert.Equal(t, "people.csv", sum.FileName)
	assert.Equal(t, 4, sum.RowCount)

	// A form without the file part.
	buf.Reset()
	mw = multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "hi"))
	require.NoError(t, mw.Close())
	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/load", &buf, "Content-Type", mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "FILE004")
}

func TestServer_LoadErrors(t *testing.T) {
	h := newTestServer(t, testConfig(), core.Options{MaxFileSize: 16}).Router()
	id := createSession(t, h)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"empty body", "", http.StatusUnprocessableEntity, "FILE005"},
		{"too large", contacts, http.StatusRequestEntityTooLarge, "FILE001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/load", strings.NewReader(tt.body))
			assert.Equal(t, tt.wantCode, rec.Code)
			var errResp ErrorResponse
			decodeBody(t, rec, &errResp)
			assert.Equal(t, tt.wantErr, errResp.Code)
		})
	}
}

func TestServer_CleaningFlow(t *testing.T) {
	h := newTestServer(t, testConfig(), core.Options{}).Router()
	id := loadedSession(t, h)
	base := "/api/sessions/" + id

	rec := do(t, h, http.MethodGet, base+"/validate?start=0&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `{"row":1,"col":1}`)

	rec = do(t, h, http.MethodGet, base+"/columns/1/suggestions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sugg struct {
		Suggestions []struct {
			Kind   mechanic.Kind   `json:"kind"`
			Params json.RawMessage `json:"params"`
		} `json:"suggestions"`
	}
	decodeBody(t, rec, &sugg)
	require.NotEmpty(t, sugg.Suggestions)
	assert.Equal(t, mechanic.KindTrimWhitespace, sugg.Suggestions[0].Kind)

	rec = do(t, h, http.MethodPost, base+"/columns/1/suggestions/apply", jsonBody(sugg.Suggestions[0]))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"cellsChanged":1`)

	rec = do(t, h, http.MethodPost, base+"/columns/2/validate", jsonBody(map[string]string{"type": "Email"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var colResp struct {
		InvalidRows []int `json:"invalidRows"`
	}
	decodeBody(t, rec, &colResp)
	assert.Equal(t, []int{2}, colResp.InvalidRows)

	rec = do(t, h, http.MethodPost, base+"/validate/chunk", jsonBody(map[string]any{"columns": []int{2, 1}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `{"col":2,"rows":[2]}`)
	assert.Contains(t, rec.Body.String(), `{"col":1,"rows":[]}`)

	rec = do(t, h, http.MethodPost, base+"/columns/2/bulk", jsonBody(map[string]any{
		"action": map[string]string{"type": "FindReplace", "search": " @", "replace": "@"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"cellsChanged":1`)

	rec = do(t, h, http.MethodPost, base+"/cells", jsonBody(map[string]any{"row": 3, "col": 1, "value": "52"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"patches":3`)

	rec = do(t, h, http.MethodPost, base+"/columns/1/correction", jsonBody(map[string]string{"mode": "revert"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cellsChanged":2`)

	rec = do(t, h, http.MethodPut, base+"/schema", jsonBody(map[string]any{"types": []string{"Text", "Float", "Email"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"changed":1`)

	rec = do(t, h, http.MethodGet, base+"/history?column=1&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Entries []core.HistoryEntry `json:"entries"`
	}
	decodeBody(t, rec, &hist)
	require.Len(t, hist.Entries, 2)
	assert.Equal(t, core.ActionCorrectionRevert, hist.Entries[0].Action)
	assert.Equal(t, core.ActionCellEdit, hist.Entries[1].Action)
	assert.Equal(t, "192.0.2.1", hist.Entries[0].IPAddress)

	rec = do(t, h, http.MethodGet, base+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "contacts_cleaned_")
	assert.Contains(t, rec.Body.String(), "Cy,29,cy@example.com\n")
	assert.Contains(t, rec.Body.String(), "Bob,\" 41 \",bob@example.com\n", "revert restored the raw value")
}

func TestServer_SuggestAll(t *testing.T) {
	h := newTestServer(t, testConfig(), core.Options{}).Router()
	id := loadedSession(t, h)

	rec := do(t, h, http.MethodGet, "/api/sessions/"+id+"/suggestions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Columns []struct {
			Column      int    `json:"column"`
			Name        string `json:"name"`
			Suggestions []struct {
				Kind mechanic.Kind `json:"kind"`
			} `json:"suggestions"`
		} `json:"columns"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Columns, 3)
	assert.Equal(t, "age", resp.Columns[1].Name)
	require.NotEmpty(t, resp.Columns[1].Suggestions)
	assert.Equal(t, mechanic.KindTrimWhitespace, resp.Columns[1].Suggestions[0].Kind)
}

func TestServer_ErrorMapping(t *testing.T) {
	h := newTestServer(t, testConfig(), core.Options{}).Router()
	id := loadedSession(t, h)
	base := "/api/sessions/" + id

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"non-numeric column", http.MethodPost, base + "/columns/x/validate", `{"type":"Text"}`, http.StatusBadRequest, "REQ001"},
		{"malformed body", http.MethodPost, base + "/cells", `not json`, http.StatusBadRequest, "REQ001"},
		{"bad limit", http.MethodGet, base + "/rows?limit=0", ``, http.StatusBadRequest, "REQ001"},
		{"unknown type", http.MethodPost, base + "/columns/1/validate", `{"type":"Decimal"}`, http.StatusBadRequest, "VAL001"},
		{"cell out of bounds", http.MethodPost, base + "/cells", `{"row":99,"col":0,"value":"x"}`, http.StatusBadRequest, "DS002"},
		{"schema mismatch", http.MethodPut, base + "/schema", `{"types":["Text"]}`, http.StatusBadRequest, "DS003"},
		{"unknown correction", http.MethodPost, base + "/columns/0/correction", `{"mode":"purge"}`, http.StatusBadRequest, "DS004"},
		{"unknown bulk action", http.MethodPost, base + "/columns/0/bulk", `{"action":{"type":"shout"}}`, http.StatusBadRequest, "DS005"},
		{"missing bulk action", http.MethodPost, base + "/columns/0/bulk", `{"start":0}`, http.StatusBadRequest, "DS005"},
		{"invalid regex", http.MethodPost, base + "/columns/0/bulk", `{"action":{"type":"regex","pattern":"("}}`, http.StatusBadRequest, "VAL002"},
		{"empty search", http.MethodPost, base + "/columns/0/bulk", `{"action":{"type":"find"}}`, http.StatusBadRequest, "VAL003"},
		{"unknown suggestion", http.MethodPost, base + "/columns/0/suggestions/apply", `{"kind":"Nope"}`, http.StatusBadRequest, "VAL004"},
		{"missing session", http.MethodGet, "/api/sessions/nope/summary", ``, http.StatusNotFound, "SES001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, strings.NewReader(tt.body))
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			var errResp ErrorResponse
			decodeBody(t, rec, &errResp)
			assert.Equal(t, tt.wantErr, errResp.Code)
			assert.NotEmpty(t, errResp.Message)
			assert.Equal(t, errResp.Message, errResp.Error)
		})
	}
}

func TestServer_Msgpack(t *testing.T) {
	h := newTestServer(t, testConfig(), core.Options{}).Router()
	id := loadedSession(t, h)

	rec := do(t, h, http.MethodGet, "/api/sessions/"+id+"/summary", nil, "Accept", "application/msgpack")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get("Content-Type"))

	var sum struct {
		RowCount int    `json:"rowCount"`
		FileName string `json:"fileName"`
	}
	dec := msgpack.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
	dec.SetCustomStructTag("json")
	require.NoError(t, dec.Decode(&sum))
	assert.Equal(t, 4, sum.RowCount)
	assert.Equal(t, "contacts.csv", sum.FileName)

	rec = do(t, h, http.MethodGet, "/api/sessions/nope/summary", nil, "Accept", "application/msgpack")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var errResp ErrorResponse
	dec = msgpack.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
	dec.SetCustomStructTag("json")
	require.NoError(t, dec.Decode(&errResp))
	assert.Equal(t, "SES001", errResp.Code)
}

func TestServer_SecurityHeaders(t *testing.T) {
	h := newTestServer(t, testConfig(), core.Options{}).Router()

	rec := do(t, h, http.MethodGet, "/api/status", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
}

func TestServer_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, LoadLimit: 1}
	h := newTestServer(t, cfg, core.Options{}).Router()

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodGet, "/api/status", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	var errResp ErrorResponse
	decodeBody(t, rec, &errResp)
	assert.Equal(t, "RATE001", errResp.Code)
}

func TestServer_APIKey(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"k1"}
	h := newTestServer(t, cfg, core.Options{}).Router()

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/status", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status", nil, "X-API-Key", "k1").Code)
}

func dialLoad(t *testing.T, ts *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + id + "/load/ws?name=contacts.csv"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrames(t *testing.T, conn *websocket.Conn) []wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frames []wsFrame
	for {
		var f wsFrame
		if err := conn.ReadJSON(&f); err != nil {
			break
		}
		frames = append(frames, f)
		if f.Type == "summary" || f.Type == "error" {
			break
		}
	}
	return frames
}

func TestServer_LoadWebSocket(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, testConfig(), core.Options{}).Router())
	defer ts.Close()

	id := createSession(t, ts.Config.Handler)
	conn := dialLoad(t, ts, id)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(contacts)))

	frames := readFrames(t, conn)
	require.GreaterOrEqual(t, len(frames), 2)

	first := frames[0]
	assert.Equal(t, "progress", first.Type)
	require.NotNil(t, first.Progress)
	assert.Equal(t, core.PhaseStarting, first.Progress.Phase)

	last := frames[len(frames)-1]
	require.Equal(t, "summary", last.Type)
	require.NotNil(t, last.Summary)
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, 4, last.Summary.RowCount)
	assert.Equal(t, "contacts.csv", last.Summary.FileName)

	rec := do(t, ts.Config.Handler, http.MethodGet, "/api/sessions/"+id+"/summary", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "the socket load is visible over plain HTTP")
}

func TestServer_LoadWebSocketErrors(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, testConfig(), core.Options{}).Router())
	defer ts.Close()
	id := createSession(t, ts.Config.Handler)

	tests := []struct {
		name    string
		msgType int
		payload string
		wantErr string
	}{
		{"text frame", websocket.TextMessage, contacts, "REQ001"},
		{"empty file", websocket.BinaryMessage, "", "FILE005"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dialLoad(t, ts, id)
			require.NoError(t, conn.WriteMessage(tt.msgType, []byte(tt.payload)))

			frames := readFrames(t, conn)
			require.NotEmpty(t, frames)
			last := frames[len(frames)-1]
			require.Equal(t, "error", last.Type)
			require.NotNil(t, last.Error)
			assert.Equal(t, tt.wantErr, last.Error.Code)
		})
	}
}
