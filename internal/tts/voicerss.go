package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/inchinet/nativespeaker/internal/config"
)

// ErrMissingAPIKey is returned when the remote TTS service has no credential.
var ErrMissingAPIKey = errors.New("voicerss api key not configured")

// Preflighter is implemented by synthesizers that can reject a request before
// any upstream work is done.
type Preflighter interface {
	Preflight() error
}

// VoiceRSSSynth generates speech with the VoiceRSS web API. The service returns
// the whole clip in one response, so a single final chunk is emitted.
type VoiceRSSSynth struct {
	cfg        config.VoiceRSSConfig
	sampleRate int
	channels   int
	client     *http.Client
}

var (
	_ Synthesizer = (*VoiceRSSSynth)(nil)
	_ Preflighter = (*VoiceRSSSynth)(nil)
	_ FixedVoicer = (*VoiceRSSSynth)(nil)
)

func NewVoiceRSSSynth(cfg config.VoiceRSSConfig, sampleRate, channels int) *VoiceRSSSynth {
	return &VoiceRSSSynth{
		cfg:        cfg,
		sampleRate: sampleRate,
		channels:   channels,
		client:     &http.Client{},
	}
}

func (v *VoiceRSSSynth) Preflight() error {
	if strings.TrimSpace(v.cfg.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// FixedVoice reports the service voice; SynthRequest.Voice names an
// on-device voice and is ignored here.
func (v *VoiceRSSSynth) FixedVoice() string {
	return v.cfg.Voice
}

func (v *VoiceRSSSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		payload, err := v.fetch(ctx, req)
		if err != nil {
			errs <- err
			return
		}
		chunks <- SynthChunk{
			SessionID:  req.SessionID,
			Format:     strings.ToLower(v.cfg.Codec),
			SampleRate: v.sampleRate,
			Channels:   v.channels,
			PCM:        payload,
			Final:      true,
		}
	}()
	return chunks, errs
}

func (v *VoiceRSSSynth) fetch(ctx context.Context, req SynthRequest) ([]byte, error) {
	if err := v.Preflight(); err != nil {
		return nil, err
	}
	reqURL, err := v.requestURL(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("voicerss request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read voicerss response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("voicerss error: %s", strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (v *VoiceRSSSynth) requestURL(req SynthRequest) (string, error) {
	u, err := url.Parse(v.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse voicerss endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", v.cfg.APIKey)
	q.Set("src", req.Text)
	q.Set("hl", strings.ToLower(req.Language))
	if v.cfg.Voice != "" {
		q.Set("v", v.cfg.Voice)
	}
	q.Set("r", strconv.Itoa(v.cfg.Rate))
	q.Set("c", v.cfg.Codec)
	if v.cfg.Format != "" {
		q.Set("f", v.cfg.Format)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
