package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/inchinet/nativespeaker/internal/narration"
)

// Narrator is the controller surface the HTTP layer drives.
type Narrator interface {
	Snapshot() narration.Snapshot
	Subscribe(fn func(narration.Snapshot)) func()
	SetText(text string)
	LoadFile(name string, r io.Reader) error
	SpeakCurrent() *narration.Playback
	Stop()
	ToggleRecord() error
	Download() (narration.Export, error)
}

type handler struct {
	narrator  Narrator
	logger    *slog.Logger
	maxUpload int64
}

type textRequest struct {
	Text *string `json:"text"`
}

func (h *handler) state(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, h.narrator.Snapshot(), http.StatusOK)
}

func (h *handler) setText(w http.ResponseWriter, r *http.Request) {
	req, err := decodeText(r)
	if err != nil || req.Text == nil {
		jsonError(w, "body must be {\"text\": string}", http.StatusBadRequest)
		return
	}
	h.narrator.SetText(*req.Text)
	jsonResponse(w, h.narrator.Snapshot(), http.StatusOK)
}

func (h *handler) loadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "multipart field \"file\" is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := h.narrator.LoadFile(header.Filename, file); err != nil {
		jsonError(w, "failed to read file", http.StatusUnprocessableEntity)
		return
	}
	jsonResponse(w, h.narrator.Snapshot(), http.StatusOK)
}

// speak accepts an optional {"text": ...} body that replaces the text field
// before speaking.
func (h *handler) speak(w http.ResponseWriter, r *http.Request) {
	req, err := decodeText(r)
	if err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text != nil {
		h.narrator.SetText(*req.Text)
	}
	status := http.StatusOK
	if h.narrator.SpeakCurrent() != nil {
		status = http.StatusAccepted
	}
	jsonResponse(w, h.narrator.Snapshot(), status)
}

func (h *handler) stop(w http.ResponseWriter, _ *http.Request) {
	h.narrator.Stop()
	jsonResponse(w, h.narrator.Snapshot(), http.StatusOK)
}

func (h *handler) record(w http.ResponseWriter, _ *http.Request) {
	if err := h.narrator.ToggleRecord(); err != nil {
		if errors.Is(err, narration.ErrRecognitionUnavailable) {
			jsonError(w, narration.StatusRecognitionUnsupported, http.StatusConflict)
			return
		}
		h.logger.Error("record toggle failed", slog.String("error", err.Error()))
		jsonError(w, "record toggle failed", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, h.narrator.Snapshot(), http.StatusOK)
}

func (h *handler) download(w http.ResponseWriter, _ *http.Request) {
	export, err := h.narrator.Download()
	if errors.Is(err, narration.ErrNothingToDownload) {
		jsonError(w, narration.AlertNothingToDownload, http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "download failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Body)
}

// decodeText treats an empty body as a request without text.
func decodeText(r *http.Request) (textRequest, error) {
	var req textRequest
	if r.Body == nil {
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	if errors.Is(err, io.EOF) {
		return req, nil
	}
	return req, err
}

func jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	jsonResponse(w, map[string]string{"error": msg}, status)
}
