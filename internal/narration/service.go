package narration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/inchinet/nativespeaker/internal/bus"
	"github.com/inchinet/nativespeaker/internal/protocol"
	"github.com/inchinet/nativespeaker/internal/stt"
	"github.com/inchinet/nativespeaker/internal/tts"
	"github.com/nats-io/nats.go"
)

// Service exposes a Controller on the bus. Commands arrive as requests on the
// narration.cmd subjects and are answered with the resulting state; every
// state change is broadcast on narration.status.
type Service struct {
	bus        *bus.Client
	controller *Controller
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	subs       []*nats.Subscription
	unobserve  func()
	mu         sync.Mutex
	ready      bool
	pubMu      sync.Mutex
	published  uint64
}

func NewService(parent context.Context, busClient *bus.Client, controller *Controller) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:        busClient,
		controller: controller,
		logger:     busClient.Logger().With(slog.String("component", "narration-bus")),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Service) Start() error {
	handlers := map[string]nats.MsgHandler{
		protocol.SubjectCommandLoad:   s.handleLoad,
		protocol.SubjectCommandText:   s.handleText,
		protocol.SubjectCommandSpeak:  s.handleSpeak,
		protocol.SubjectCommandStop:   s.handleStop,
		protocol.SubjectCommandRecord: s.handleRecord,
	}
	for subject, handler := range handlers {
		sub, err := s.bus.Conn().Subscribe(subject, handler)
		if err != nil {
			s.unsubscribe()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	s.unobserve = s.controller.Subscribe(s.publishStatus)

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	s.logger.Info("narration bus service started")
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.unobserve != nil {
		s.unobserve()
	}
	s.unsubscribe()
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()
}

func (s *Service) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready && s.bus.Healthy()
}

func (s *Service) unsubscribe() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) handleLoad(msg *nats.Msg) {
	cmd, ok := s.decode(msg)
	if !ok {
		return
	}
	if cmd.FileName == "" {
		s.reply(msg, errors.New("file_name is required"))
		return
	}
	s.reply(msg, s.controller.LoadFile(cmd.FileName, bytes.NewReader(cmd.Content)))
}

func (s *Service) handleText(msg *nats.Msg) {
	cmd, ok := s.decode(msg)
	if !ok {
		return
	}
	s.controller.SetText(cmd.Text)
	s.reply(msg, nil)
}

func (s *Service) handleSpeak(msg *nats.Msg) {
	cmd, ok := s.decode(msg)
	if !ok {
		return
	}
	if cmd.Text != "" {
		s.controller.SetText(cmd.Text)
	}
	s.controller.SpeakCurrent()
	s.reply(msg, nil)
}

func (s *Service) handleStop(msg *nats.Msg) {
	s.controller.Stop()
	s.reply(msg, nil)
}

func (s *Service) handleRecord(msg *nats.Msg) {
	s.reply(msg, s.controller.ToggleRecord())
}

// decode accepts an empty payload as a zero Command.
func (s *Service) decode(msg *nats.Msg) (protocol.Command, bool) {
	var cmd protocol.Command
	if len(msg.Data) == 0 {
		return cmd, true
	}
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		s.logger.Warn("failed to decode narration command", slog.String("subject", msg.Subject), slogError(err))
		s.reply(msg, fmt.Errorf("decode command: %w", err))
		return cmd, false
	}
	return cmd, true
}

func (s *Service) reply(msg *nats.Msg, err error) {
	if msg.Reply == "" {
		return
	}
	out := protocol.Reply{State: s.controller.Snapshot()}
	if err != nil {
		out.Error = err.Error()
	}
	data, merr := json.Marshal(out)
	if merr != nil {
		s.logger.Error("failed to encode reply", slogError(merr))
		return
	}
	if rerr := msg.Respond(data); rerr != nil {
		s.logger.Warn("failed to respond", slog.String("subject", msg.Subject), slogError(rerr))
	}
}

// publishStatus broadcasts snap unless a newer version already went out.
// Observers run outside the controller lock, so snapshots can arrive here out
// of order.
func (s *Service) publishStatus(snap Snapshot) {
	if s.ctx.Err() != nil {
		return
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if snap.Version <= s.published {
		return
	}
	s.published = snap.Version
	if err := s.bus.PublishJSON(protocol.SubjectNarrationStatus, snap); err != nil {
		s.logger.Warn("failed to publish narration status", slogError(err))
	}
}

// TranscriptPublisher returns an Options.OnTranscript hook that broadcasts
// translated utterances on stt.text.final.
func TranscriptPublisher(pub tts.Publisher, language string, logger *slog.Logger) func(string, stt.TranscriptResult, string) {
	return func(sessionID string, result stt.TranscriptResult, translated string) {
		transcript := protocol.Transcript{
			SessionID:  sessionID,
			Text:       result.Text,
			Translated: translated,
			Language:   language,
			Timestamp:  time.Now().UTC(),
			Confidence: result.Confidence,
		}
		if err := pub.PublishJSON(protocol.SubjectTranscript, transcript); err != nil {
			logger.Warn("failed to publish transcript", slog.String("session", sessionID), slogError(err))
		}
	}
}
