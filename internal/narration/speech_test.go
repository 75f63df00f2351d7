package narration

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/inchinet/nativespeaker/internal/config"
	"github.com/inchinet/nativespeaker/internal/tts"
)

func TestSpeakVoiceRSSUsesConfiguredVoice(t *testing.T) {
	var voice atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		voice.Store(r.URL.Query().Get("v"))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-fake-mp3"))
	}))
	t.Cleanup(srv.Close)

	cfg, err := config.Load("../../nativespeaker.yaml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.TTS.Voices) == 0 || cfg.TTS.Voices[0].Name == cfg.TTS.VoiceRSS.Voice {
		t.Fatalf("shipped config should list an on-device voice distinct from the service voice: %+v", cfg.TTS)
	}
	cfg.TTS.Mode = "voicerss"
	cfg.TTS.VoiceRSS.Endpoint = srv.URL
	cfg.TTS.VoiceRSS.APIKey = "k"

	synth, err := tts.New(cfg.TTS)
	if err != nil {
		t.Fatalf("tts: %v", err)
	}
	sink := &recordingSink{}
	opts := OptionsFromConfig(cfg)
	opts.Translator = &fakeTranslator{}
	opts.Synthesizer = synth
	opts.Sink = sink
	opts.Capabilities = allAvailable()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(context.Background(), opts)
	t.Cleanup(c.Close)

	pb := c.Speak("hello")
	if pb == nil {
		t.Fatalf("expected playback, state %+v", c.Snapshot())
	}
	waitDone(t, pb)

	if got, _ := voice.Load().(string); got != cfg.TTS.VoiceRSS.Voice {
		t.Fatalf("expected remote voice %q, got %q", cfg.TTS.VoiceRSS.Voice, got)
	}
	if snap := c.Snapshot(); snap.TTSStatus != StatusReady {
		t.Fatalf("expected ready after remote playback, got %q", snap.TTSStatus)
	}
}

func TestVoiceForOnDeviceSynth(t *testing.T) {
	c, _ := newTestController(t, func(o *Options) {
		o.Voices = []tts.Voice{{Name: "Karen", Lang: "en-AU"}, {Name: "Sin-ji", Lang: "zh-HK"}}
	})
	if got := c.voiceFor(c.opts.Synthesizer); got != "Sin-ji" {
		t.Fatalf("expected on-device Cantonese voice, got %q", got)
	}
}
