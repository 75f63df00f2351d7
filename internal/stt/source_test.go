package stt

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/inchinet/nativespeaker/internal/config"
	"github.com/inchinet/nativespeaker/internal/natsserver"
	"github.com/inchinet/nativespeaker/internal/protocol"
	"github.com/nats-io/nats.go"
)

func TestBusSourceDeliversDeviceFrames(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ns, err := natsserver.Start(config.BusConfig{Enabled: true, Embedded: true, Port: -1, StoreDir: t.TempDir()}, logger)
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(ns.Shutdown)

	conn, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(conn.Close)

	src := NewBusSource(conn, "kitchen", logger)
	if src.Subject() != "audio.frame.kitchen" {
		t.Fatalf("unexpected subject %s", src.Subject())
	}

	ctx, cancel := context.WithCancel(context.Background())
	frames, err := src.Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := conn.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	other, _ := json.Marshal(protocol.AudioFrame{SessionID: "x", PCM: []byte{9, 9}})
	_ = conn.Publish("audio.frame.hallway", other)
	data, _ := json.Marshal(protocol.AudioFrame{SessionID: "k1", PCM: []byte{1, 2}, Final: true})
	if err := conn.Publish(src.Subject(), data); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case frame := <-frames:
		if frame.SessionID != "k1" || !frame.Final || len(frame.PCM) != 2 {
			t.Fatalf("unexpected frame %+v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
	}

	cancel()
	select {
	case _, ok := <-frames:
		if ok {
			t.Fatal("expected channel to close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
