package tts

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/inchinet/nativespeaker/internal/protocol"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []any
}

func (r *recordingPublisher) PublishJSON(subject string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	r.payloads = append(r.payloads, v)
	return nil
}

func TestBusSinkPublishesChunksAndDone(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewBusSink(pub, "kitchen")
	ctx := context.Background()

	if err := sink.Write(ctx, SynthChunk{SessionID: "s1", Format: FormatPCM16, PCM: []byte{1, 2}, Final: true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Finish(ctx, "s1", false); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if len(pub.subjects) != 2 || pub.subjects[0] != protocol.SubjectTTSAudio || pub.subjects[1] != protocol.SubjectTTSDone {
		t.Fatalf("unexpected subjects %v", pub.subjects)
	}
	chunk := pub.payloads[0].(protocol.AudioChunk)
	if chunk.Target != "kitchen" || len(chunk.PCM) != 2 {
		t.Fatalf("unexpected chunk %+v", chunk)
	}
	status := pub.payloads[1].(protocol.TTSStatus)
	if !status.Completed || status.Cancelled {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestFileSinkWritesWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "speech.wav")
	sink := NewFileSink(path)
	ctx := context.Background()

	_ = sink.Write(ctx, SynthChunk{SessionID: "s1", Format: FormatPCM16, SampleRate: 16000, Channels: 1, PCM: []byte{1, 0}})
	_ = sink.Write(ctx, SynthChunk{SessionID: "s1", Format: FormatPCM16, SampleRate: 16000, Channels: 1, PCM: []byte{2, 0}, Final: true})
	if err := sink.Finish(ctx, "s1", false); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if sink.LastPath() != path {
		t.Fatalf("unexpected path %q", sink.LastPath())
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() <= 4 {
		t.Fatalf("expected wav header and samples, size=%d", info.Size())
	}
}

func TestFileSinkEncodedPayloadAndCancel(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(filepath.Join(dir, "speech.wav"))
	ctx := context.Background()

	_ = sink.Write(ctx, SynthChunk{SessionID: "s1", Format: FormatMP3, PCM: []byte("mp3")})
	if err := sink.Finish(ctx, "s1", false); err != nil {
		t.Fatalf("finish: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "speech.mp3"))
	if err != nil || string(data) != "mp3" {
		t.Fatalf("expected verbatim mp3, got %q err=%v", data, err)
	}

	_ = sink.Write(ctx, SynthChunk{SessionID: "s2", Format: FormatMP3, PCM: []byte("other")})
	if err := sink.Finish(ctx, "s2", true); err != nil {
		t.Fatalf("finish cancelled: %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(dir, "speech.mp3"))
	if string(data) != "mp3" {
		t.Fatalf("cancelled session must not overwrite output, got %q", data)
	}
}
