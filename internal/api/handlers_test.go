package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/inchinet/nativespeaker/internal/narration"
)

type fakeNarrator struct {
	mu         sync.Mutex
	state      narration.Snapshot
	observers  []func(narration.Snapshot)
	loaded     string
	speaks     int
	stops      int
	recordErr  error
	transcript string
}

func (f *fakeNarrator) Snapshot() narration.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeNarrator) Subscribe(fn func(narration.Snapshot)) func() {
	f.mu.Lock()
	f.observers = append(f.observers, fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeNarrator) change(fn func(s *narration.Snapshot)) {
	f.mu.Lock()
	fn(&f.state)
	f.state.Version++
	snap := f.state
	observers := append([]func(narration.Snapshot){}, f.observers...)
	f.mu.Unlock()
	for _, o := range observers {
		o(snap)
	}
}

func (f *fakeNarrator) SetText(text string) {
	f.change(func(s *narration.Snapshot) { s.SourceText = text })
}

func (f *fakeNarrator) LoadFile(name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.loaded = name
	f.mu.Unlock()
	f.change(func(s *narration.Snapshot) {
		s.FileName = name
		s.SourceText = string(data)
	})
	return nil
}

func (f *fakeNarrator) SpeakCurrent() *narration.Playback {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speaks++
	if strings.TrimSpace(f.state.SourceText) == "" {
		return nil
	}
	return &narration.Playback{ID: "p1"}
}

func (f *fakeNarrator) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeNarrator) ToggleRecord() error { return f.recordErr }

func (f *fakeNarrator) Download() (narration.Export, error) {
	if f.transcript == "" {
		return narration.Export{}, narration.ErrNothingToDownload
	}
	return narration.Export{Filename: "transcription.txt", ContentType: "text/plain; charset=utf-8", Body: []byte(f.transcript)}, nil
}

func newTestRouter(n *fakeNarrator) http.Handler {
	return NewRouter(Options{
		Narrator: n,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func decodeSnapshot(t *testing.T, body io.Reader) narration.Snapshot {
	t.Helper()
	var snap narration.Snapshot
	if err := json.NewDecoder(body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func TestStateEndpoint(t *testing.T) {
	n := &fakeNarrator{state: narration.Snapshot{TTSStatus: narration.StatusReady}}
	rec := httptest.NewRecorder()
	newTestRouter(n).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if snap := decodeSnapshot(t, rec.Body); snap.TTSStatus != narration.StatusReady {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSetTextEndpoint(t *testing.T) {
	n := &fakeNarrator{}
	router := newTestRouter(n)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/text", strings.NewReader(`{"text":"你好"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if snap := decodeSnapshot(t, rec.Body); snap.SourceText != "你好" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/text", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing text, got %d", rec.Code)
	}
}

func TestFileUploadEndpoint(t *testing.T) {
	n := &fakeNarrator{}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "story.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("once upon a time"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/file", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newTestRouter(n).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	snap := decodeSnapshot(t, rec.Body)
	if snap.SourceText != "once upon a time" || snap.FileName != "story.txt" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestFileUploadRequiresField(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/file", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	newTestRouter(&fakeNarrator{}).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSpeakEndpoint(t *testing.T) {
	n := &fakeNarrator{}
	router := newTestRouter(n)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/speak", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when nothing starts, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/speak", strings.NewReader(`{"text":"hello"}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if n.speaks != 2 || n.Snapshot().SourceText != "hello" {
		t.Fatalf("unexpected narrator state speaks=%d %+v", n.speaks, n.Snapshot())
	}
}

func TestStopEndpoint(t *testing.T) {
	n := &fakeNarrator{}
	rec := httptest.NewRecorder()
	newTestRouter(n).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stop", nil))
	if rec.Code != http.StatusOK || n.stops != 1 {
		t.Fatalf("status = %d stops = %d", rec.Code, n.stops)
	}
}

func TestRecordUnavailable(t *testing.T) {
	n := &fakeNarrator{recordErr: narration.ErrRecognitionUnavailable}
	rec := httptest.NewRecorder()
	newTestRouter(n).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/record", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	n.recordErr = errors.New("boom")
	rec = httptest.NewRecorder()
	newTestRouter(n).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/record", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestDownloadEndpoint(t *testing.T) {
	n := &fakeNarrator{}
	router := newTestRouter(n)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), narration.AlertNothingToDownload) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	n.transcript = "早晨"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="transcription.txt"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if rec.Body.String() != "早晨" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	ready := false
	router := NewRouter(Options{
		Narrator: &fakeNarrator{},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Ready:    func() bool { return ready },
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before ready = %d", rec.Code)
	}
	ready = true
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz after ready = %d", rec.Code)
	}
}

func TestEventStream(t *testing.T) {
	n := &fakeNarrator{state: narration.Snapshot{Version: 1, TTSStatus: narration.StatusReady}}
	srv := httptest.NewServer(newTestRouter(n))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first narration.Snapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if first.TTSStatus != narration.StatusReady {
		t.Fatalf("unexpected initial snapshot %+v", first)
	}

	n.SetText("streamed")
	var next narration.Snapshot
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if next.SourceText != "streamed" || next.Version <= first.Version {
		t.Fatalf("unexpected update %+v", next)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000"})
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.Header.Set("Origin", "http://evil.example")
	if check(req) {
		t.Fatal("unexpected origin accepted")
	}
	req.Header.Set("Origin", "http://localhost:3000")
	if !check(req) {
		t.Fatal("allowed origin rejected")
	}
}
