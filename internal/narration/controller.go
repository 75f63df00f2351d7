// Package narration owns the narration state and wires the text field, speech
// output, speech input and transcript export to their backends.
package narration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/inchinet/nativespeaker/internal/capability"
	"github.com/inchinet/nativespeaker/internal/config"
	"github.com/inchinet/nativespeaker/internal/stt"
	"github.com/inchinet/nativespeaker/internal/tts"
)

// Translator converts text to a target language. Implementations report
// failures in-band and never return an error.
type Translator interface {
	TranslateText(ctx context.Context, text, targetLang string) string
}

// Options configures a Controller. Synthesizer, Recognizer and Source may be
// nil when Capabilities marks them unavailable.
type Options struct {
	Translator   Translator
	Synthesizer  tts.Synthesizer
	Sink         tts.Sink
	Voices       []tts.Voice
	Recognizer   stt.Recognizer
	Source       stt.Source
	Capabilities capability.Report

	SpeechTarget     string // translation target before synthesis
	SpeechLanguage   string // synthesizer locale
	TranscriptTarget string // translation target for recognized speech
	STT              config.STTConfig
	ExportFilename   string

	// OnTranscript, when set, receives every recognized utterance with its translation.
	OnTranscript func(sessionID string, result stt.TranscriptResult, translated string)

	Logger *slog.Logger
}

// OptionsFromConfig fills the locale and export settings from cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Voices:           tts.VoicesFromConfig(cfg.TTS),
		SpeechTarget:     cfg.Translation.SpeechTarget,
		SpeechLanguage:   cfg.TTS.Language,
		TranscriptTarget: cfg.Translation.TranscriptTarget,
		STT:              cfg.STT,
		ExportFilename:   cfg.Export.Filename,
	}
}

// Controller serializes state changes behind one mutex. Speech output and
// speech input each hold at most one active handle; every handle carries a
// generation number, and events from a superseded generation are dropped.
type Controller struct {
	opts   Options
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     Snapshot
	playback  *Playback
	playGen   uint64
	recording *recording
	recGen    uint64
	observers map[int]func(Snapshot)
	nextObs   int
}

func New(parent context.Context, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	if opts.ExportFilename == "" {
		opts.ExportFilename = "transcription.txt"
	}
	ctx, cancel := context.WithCancel(parent)
	c := &Controller{
		opts:      opts,
		logger:    opts.Logger.With(slog.String("component", "narration")),
		ctx:       ctx,
		cancel:    cancel,
		observers: make(map[int]func(Snapshot)),
	}
	c.state.TTSStatus = StatusReady
	c.state.RecordLabel = LabelRecord
	if !opts.Capabilities.Recognition.Available() {
		c.state.RecordDisabled = true
		c.state.STTStatus = StatusRecognitionUnsupported
		c.logger.Warn("speech recognition unavailable", slog.String("reason", opts.Capabilities.Recognition.Reason))
	}
	if !opts.Capabilities.Synthesis.Available() {
		c.logger.Warn("speech synthesis unavailable", slog.String("reason", opts.Capabilities.Synthesis.Reason))
	}
	return c
}

// Close cancels in-flight work and waits for it to wind down.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every state change and returns a function that
// removes it. fn must not block.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// mutate applies fn under the lock and notifies observers.
func (c *Controller) mutate(fn func(s *Snapshot)) {
	c.mu.Lock()
	fn(&c.state)
	c.state.Version++
	snap, observers := c.state, c.observersLocked()
	c.mu.Unlock()
	notify(observers, snap)
}

func (c *Controller) observersLocked() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(c.observers))
	for _, fn := range c.observers {
		out = append(out, fn)
	}
	return out
}

func notify(observers []func(Snapshot), snap Snapshot) {
	for _, fn := range observers {
		fn(snap)
	}
}

// LoadFile replaces the text field with the full contents of r. On a read
// error the state is left untouched.
func (c *Controller) LoadFile(name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		c.logger.Warn("failed to read text file", slog.String("file", name), slogError(err))
		return fmt.Errorf("read %s: %w", name, err)
	}
	text := strings.TrimPrefix(strings.ToValidUTF8(string(data), "\uFFFD"), "\uFEFF")
	c.mutate(func(s *Snapshot) {
		s.FileName = filepath.Base(name)
		s.SourceText = text
	})
	c.logger.Info("text file loaded", slog.String("file", name), slog.Int("bytes", len(data)))
	return nil
}

// SetText replaces the editable text field.
func (c *Controller) SetText(text string) {
	c.mutate(func(s *Snapshot) { s.SourceText = text })
}

// Download packages the transcript as a plain-text file.
func (c *Controller) Download() (Export, error) {
	text := c.Snapshot().Transcript
	if text == "" {
		return Export{}, ErrNothingToDownload
	}
	return Export{
		Filename:    c.opts.ExportFilename,
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(text),
	}, nil
}

// Save writes the export into dir and returns the file path.
func (e Export) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, e.Filename)
	if err := os.WriteFile(path, e.Body, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

func isUserInputError(err error) bool {
	return errors.Is(err, tts.ErrMissingAPIKey)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
