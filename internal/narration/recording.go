package narration

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/inchinet/nativespeaker/internal/stt"
)

type recording struct {
	gen     uint64
	session *stt.Session
}

// ToggleRecord starts a recording session, or stops the active one. A
// stopped session still transcribes whatever audio it captured.
func (c *Controller) ToggleRecord() error {
	if !c.opts.Capabilities.Recognition.Available() || c.opts.Recognizer == nil || c.opts.Source == nil {
		return ErrRecognitionUnavailable
	}

	c.mu.Lock()
	if c.recording != nil {
		session := c.recording.session
		c.mu.Unlock()
		session.Stop()
		return nil
	}

	c.recGen++
	gen := c.recGen
	id := uuid.NewString()
	session, err := stt.StartSession(c.ctx, id, c.opts.Source, c.opts.Recognizer, c.opts.STT)
	if err != nil {
		c.state.Transcript = ""
		c.state.STTStatus = fmt.Sprintf("Error: %v.", err)
		c.state.Version++
		snap, observers := c.state, c.observersLocked()
		c.mu.Unlock()
		notify(observers, snap)
		c.logger.Error("failed to start recording", slogError(err))
		return nil
	}
	rec := &recording{gen: gen, session: session}
	c.recording = rec
	c.state.Transcript = ""
	c.state.Recording = true
	c.state.RecordLabel = LabelStop
	c.state.STTStatus = StatusListening
	c.state.Version++
	snap, observers := c.state, c.observersLocked()
	c.wg.Add(1)
	c.mu.Unlock()
	notify(observers, snap)

	c.logger.Info("recording started", slog.String("session", id))
	go c.runRecording(rec)
	return nil
}

func (c *Controller) runRecording(rec *recording) {
	defer c.wg.Done()

	outcome, ok := <-rec.session.Done()
	if !ok {
		outcome.Err = stt.ErrNoSpeech
	}

	if outcome.Err != nil {
		c.logger.Error("speech recognition error", slog.String("session", rec.session.ID), slogError(outcome.Err))
		c.updateRecording(rec, func(s *Snapshot) {
			s.STTStatus = fmt.Sprintf("Error: %v.", outcome.Err)
		})
		c.endRecording(rec)
		return
	}

	transcript := outcome.Result.Text
	if !c.endRecording(rec) {
		return
	}
	if !c.updateRecording(rec, func(s *Snapshot) {
		s.Transcript = fmt.Sprintf(pendingTranscriptFormat, transcript)
	}) {
		return
	}

	translated := c.opts.Translator.TranslateText(c.ctx, transcript, c.opts.TranscriptTarget)
	if !c.updateRecording(rec, func(s *Snapshot) {
		s.Transcript = translated
		s.STTStatus = ""
	}) {
		return
	}
	c.logger.Info("transcript translated", slog.String("session", rec.session.ID), slog.Int("chars", len(translated)))
	if c.opts.OnTranscript != nil {
		c.opts.OnTranscript(rec.session.ID, outcome.Result, translated)
	}
}

// updateRecording applies fn only while rec belongs to the latest recording
// generation.
func (c *Controller) updateRecording(rec *recording, fn func(s *Snapshot)) bool {
	c.mu.Lock()
	if c.recGen != rec.gen {
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

// endRecording restores the record control. "Listening..." is cleared, any
// other status is kept.
func (c *Controller) endRecording(rec *recording) bool {
	ended := c.updateRecording(rec, func(s *Snapshot) {
		s.Recording = false
		s.RecordLabel = LabelRecord
		if s.STTStatus == StatusListening {
			s.STTStatus = ""
		}
	})
	c.mu.Lock()
	if c.recording == rec {
		c.recording = nil
	}
	c.mu.Unlock()
	return ended
}
