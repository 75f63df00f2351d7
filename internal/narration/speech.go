package narration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/inchinet/nativespeaker/internal/tts"
)

// Playback is the handle for one speech-output operation.
type Playback struct {
	ID     string
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed once the playback goroutine has exited, whether it finished,
// failed or was cancelled.
func (p *Playback) Done() <-chan struct{} {
	return p.done
}

// Speak translates text and plays it. Any playback already in flight is
// cancelled first. It returns nil when nothing was started.
func (c *Controller) Speak(text string) *Playback {
	text = strings.TrimSpace(text)
	if text == "" {
		c.mutate(func(s *Snapshot) { s.TTSStatus = StatusEmptyText })
		return nil
	}
	if pf, ok := c.opts.Synthesizer.(tts.Preflighter); ok && c.opts.Capabilities.Synthesis.Available() {
		if err := pf.Preflight(); err != nil {
			c.mutate(func(s *Snapshot) { s.TTSStatus = preflightStatus(err) })
			return nil
		}
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.mu.Lock()
	if c.playback != nil {
		c.playback.cancel()
	}
	c.playGen++
	pb := &Playback{ID: uuid.NewString(), gen: c.playGen, cancel: cancel, done: make(chan struct{})}
	c.playback = pb
	c.state.Speaking = true
	c.state.SpeakDisabled = true
	c.state.TTSStatus = StatusTranslating
	c.state.Version++
	snap, observers := c.state, c.observersLocked()
	c.wg.Add(1)
	c.mu.Unlock()
	notify(observers, snap)

	go c.runPlayback(ctx, pb, text)
	return pb
}

// SpeakCurrent speaks the text field.
func (c *Controller) SpeakCurrent() *Playback {
	return c.Speak(c.Snapshot().SourceText)
}

// Stop cancels the active playback. Its completion and error events are
// dropped, so the status stays "Ready." even if they arrive later.
func (c *Controller) Stop() {
	c.mu.Lock()
	pb := c.playback
	if pb == nil {
		c.mu.Unlock()
		return
	}
	pb.cancel()
	c.playback = nil
	c.playGen++
	c.state.Speaking = false
	c.state.SpeakDisabled = false
	c.state.TTSStatus = StatusReady
	c.state.Version++
	snap, observers := c.state, c.observersLocked()
	c.mu.Unlock()
	notify(observers, snap)
	c.logger.Info("playback stopped", slog.String("playback", pb.ID))
}

func (c *Controller) runPlayback(ctx context.Context, pb *Playback, text string) {
	defer c.wg.Done()
	defer close(pb.done)
	defer pb.cancel()

	translated := c.opts.Translator.TranslateText(ctx, text, c.opts.SpeechTarget)
	if !c.updatePlayback(pb, func(s *Snapshot) { s.TTSStatus = StatusGenerating }) {
		return
	}

	if !c.opts.Capabilities.Synthesis.Available() || c.opts.Synthesizer == nil {
		c.finishPlayback(pb, StatusSynthesisUnsupported)
		return
	}

	chunks, errs := c.opts.Synthesizer.Synthesize(ctx, tts.SynthRequest{
		SessionID: pb.ID,
		Text:      translated,
		Voice:     c.voiceFor(c.opts.Synthesizer),
		Language:  c.opts.SpeechLanguage,
	})
	c.updatePlayback(pb, func(s *Snapshot) { s.TTSStatus = StatusSpeaking })

	err := c.stream(ctx, chunks, errs)
	cancelled := ctx.Err() != nil
	if c.opts.Sink != nil {
		if ferr := c.opts.Sink.Finish(context.WithoutCancel(ctx), pb.ID, cancelled); ferr != nil && err == nil {
			err = ferr
		}
	}

	switch {
	case cancelled:
		// Stop or a newer Speak already reset the controls.
	case err != nil:
		c.logger.Error("speech synthesis error", slog.String("playback", pb.ID), slogError(err))
		if isUserInputError(err) {
			c.finishPlayback(pb, preflightStatus(err))
			return
		}
		c.finishPlayback(pb, fmt.Sprintf("Error playing audio: %v.", err))
	default:
		c.finishPlayback(pb, StatusReady)
	}
}

// stream forwards chunks to the sink until the synthesizer closes both
// channels. The first error wins.
func (c *Controller) stream(ctx context.Context, chunks <-chan tts.SynthChunk, errs <-chan error) error {
	var firstErr error
	sequence := 0
	for chunks != nil || errs != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if firstErr != nil || c.opts.Sink == nil {
				continue
			}
			chunk.Sequence = sequence
			sequence++
			if err := c.opts.Sink.Write(ctx, chunk); err != nil {
				firstErr = err
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// updatePlayback applies fn only while pb is still the active playback.
// voiceFor picks the on-device voice for the speech language. Backends with
// a configured service voice bypass the on-device list.
func (c *Controller) voiceFor(synth tts.Synthesizer) string {
	if fixed, ok := synth.(tts.FixedVoicer); ok {
		return fixed.FixedVoice()
	}
	voice, ok := tts.SelectVoice(c.opts.Voices, c.opts.SpeechLanguage)
	if !ok {
		c.logger.Warn("no specific Cantonese voice found, using backend default", slog.String("lang", c.opts.SpeechLanguage))
	}
	return voice.Name
}

func (c *Controller) updatePlayback(pb *Playback, fn func(s *Snapshot)) bool {
	c.mu.Lock()
	if c.playback != pb || c.playGen != pb.gen {
		c.mu.Unlock()
		return false
	}
	fn(&c.state)
	c.state.Version++
	snap, observers := c.state, c.observersLocked()
	c.mu.Unlock()
	notify(observers, snap)
	return true
}

func (c *Controller) finishPlayback(pb *Playback, status string) {
	finished := c.updatePlayback(pb, func(s *Snapshot) {
		s.Speaking = false
		s.SpeakDisabled = false
		s.TTSStatus = status
	})
	if !finished {
		return
	}
	c.mu.Lock()
	if c.playback == pb {
		c.playback = nil
	}
	c.mu.Unlock()
}

func preflightStatus(err error) string {
	if errors.Is(err, tts.ErrMissingAPIKey) {
		return StatusMissingAPIKey
	}
	return fmt.Sprintf("Error: %v.", err)
}
