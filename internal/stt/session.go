package stt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/inchinet/nativespeaker/internal/config"
	"github.com/inchinet/nativespeaker/internal/protocol"
)

// ErrNoSpeech is reported when a recording ends without any captured audio.
var ErrNoSpeech = errors.New("no-speech")

// Outcome is the terminal event of a recording session.
type Outcome struct {
	Result TranscriptResult
	Err    error
}

// Session captures a single utterance and transcribes it once capture ends,
// either because the device flagged a final frame or because Stop was called.
type Session struct {
	ID   string
	stop chan struct{}
	once sync.Once
	done chan Outcome
}

func StartSession(ctx context.Context, id string, src Source, rec Recognizer, cfg config.STTConfig) (*Session, error) {
	captureCtx, cancelCapture := context.WithCancel(ctx)
	frames, err := src.Open(captureCtx)
	if err != nil {
		cancelCapture()
		return nil, err
	}
	s := &Session{
		ID:   id,
		stop: make(chan struct{}),
		done: make(chan Outcome, 1),
	}
	go func() {
		defer close(s.done)
		pcm, sampleRate, channels, err := s.capture(ctx, frames, cfg)
		cancelCapture()
		if err != nil {
			s.done <- Outcome{Err: err}
			return
		}
		if len(pcm) == 0 {
			s.done <- Outcome{Err: ErrNoSpeech}
			return
		}

		tctx, cancel := context.WithTimeout(ctx, 45*time.Second)
		defer cancel()
		result, err := rec.Transcribe(tctx, pcm, sampleRate, channels)
		s.done <- Outcome{Result: result, Err: err}
	}()
	return s, nil
}

func (s *Session) capture(ctx context.Context, frames <-chan protocol.AudioFrame, cfg config.STTConfig) ([]byte, int, int, error) {
	var pcm []byte
	sampleRate, channels := cfg.SampleRate, cfg.Channels
	for {
		select {
		case <-ctx.Done():
			return nil, 0, 0, ctx.Err()
		case <-s.stop:
			return pcm, sampleRate, channels, nil
		case frame, ok := <-frames:
			if !ok {
				return pcm, sampleRate, channels, nil
			}
			if frame.SampleRate > 0 {
				sampleRate = frame.SampleRate
			}
			if frame.Channels > 0 {
				channels = frame.Channels
			}
			pcm = append(pcm, frame.PCM...)
			if frame.Final {
				return pcm, sampleRate, channels, nil
			}
		}
	}
}

// Stop ends capture; the buffered audio is still transcribed.
func (s *Session) Stop() {
	s.once.Do(func() { close(s.stop) })
}

// Done yields exactly one Outcome and is then closed.
func (s *Session) Done() <-chan Outcome {
	return s.done
}
