package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/inchinet/nativespeaker/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Source delivers captured audio frames for one recording. The returned
// channel is closed when ctx is cancelled.
type Source interface {
	Open(ctx context.Context) (<-chan protocol.AudioFrame, error)
}

// BusSource reads frames a capture device publishes on audio.frame.<device>.
type BusSource struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

func NewBusSource(conn *nats.Conn, device string, logger *slog.Logger) *BusSource {
	return &BusSource{
		conn:    conn,
		subject: protocol.SubjectAudioFramePrefix + "." + device,
		logger:  logger.With(slog.String("component", "stt-source")),
	}
}

func (b *BusSource) Subject() string { return b.subject }

func (b *BusSource) Open(ctx context.Context) (<-chan protocol.AudioFrame, error) {
	frames := make(chan protocol.AudioFrame, 64)
	var (
		mu     sync.Mutex
		closed bool
	)
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		var frame protocol.AudioFrame
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			b.logger.Warn("failed to decode audio frame", slogError(err))
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe audio frames: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		mu.Lock()
		closed = true
		close(frames)
		mu.Unlock()
	}()
	return frames, nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
