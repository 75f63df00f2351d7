package tts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/inchinet/nativespeaker/internal/config"
)

func drain(t *testing.T, chunks <-chan SynthChunk, errs <-chan error) ([]SynthChunk, error) {
	t.Helper()
	var got []SynthChunk
	var firstErr error
	for chunks != nil || errs != nil {
		select {
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			got = append(got, c)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return got, firstErr
}

func TestVoiceRSSSynthesize(t *testing.T) {
	var query atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-fake-mp3"))
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default().TTS.VoiceRSS
	cfg.Endpoint = srv.URL
	cfg.APIKey = "k"
	synth := NewVoiceRSSSynth(cfg, 44100, 2)

	out, errs := synth.Synthesize(context.Background(), SynthRequest{SessionID: "s1", Text: "你好", Voice: "Sin-ji", Language: "zh-HK"})
	chunks, err := drain(t, out, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || string(chunks[0].PCM) != "ID3-fake-mp3" || !chunks[0].Final {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
	if chunks[0].Format != FormatMP3 {
		t.Fatalf("expected mp3 format, got %q", chunks[0].Format)
	}

	q := query.Load().(url.Values)
	if q.Get("key") != "k" || q.Get("src") != "你好" || q.Get("hl") != "zh-hk" || q.Get("v") != "Jia" || q.Get("r") != "0" || q.Get("c") != "MP3" {
		t.Fatalf("unexpected query %v", q)
	}
}

func TestVoiceRSSErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ERROR: The API key is not available!", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default().TTS.VoiceRSS
	cfg.Endpoint = srv.URL
	cfg.APIKey = "bad"
	out, errs := NewVoiceRSSSynth(cfg, 44100, 2).Synthesize(context.Background(), SynthRequest{Text: "hi"})
	_, err := drain(t, out, errs)
	if err == nil || err.Error() != "voicerss error: ERROR: The API key is not available!" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestVoiceRSSPreflightRequiresKey(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default().TTS.VoiceRSS
	cfg.Endpoint = srv.URL
	synth := NewVoiceRSSSynth(cfg, 44100, 2)
	if err := synth.Preflight(); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	out, errs := synth.Synthesize(context.Background(), SynthRequest{Text: "hi"})
	if _, err := drain(t, out, errs); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey from Synthesize, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatal("no request expected without key")
	}
}
