package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/inchinet/nativespeaker/internal/audio"
	"github.com/inchinet/nativespeaker/internal/protocol"
)

// Sink receives synthesized audio for playback.
type Sink interface {
	Write(ctx context.Context, chunk SynthChunk) error
	// Finish is called once per session after the last chunk, or after the
	// session was cancelled.
	Finish(ctx context.Context, sessionID string, cancelled bool) error
}

// Publisher is the subset of the bus client sinks need.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// BusSink streams audio to playback devices listening on the bus.
type BusSink struct {
	pub    Publisher
	target string
}

func NewBusSink(pub Publisher, target string) *BusSink {
	return &BusSink{pub: pub, target: target}
}

func (b *BusSink) Write(_ context.Context, chunk SynthChunk) error {
	packet := protocol.AudioChunk{
		SessionID:  chunk.SessionID,
		Target:     b.target,
		Format:     chunk.Format,
		SampleRate: chunk.SampleRate,
		Channels:   chunk.Channels,
		Sequence:   chunk.Sequence,
		PCM:        chunk.PCM,
		Final:      chunk.Final,
	}
	if err := b.pub.PublishJSON(protocol.SubjectTTSAudio, packet); err != nil {
		return fmt.Errorf("publish tts chunk: %w", err)
	}
	return nil
}

func (b *BusSink) Finish(_ context.Context, sessionID string, cancelled bool) error {
	status := protocol.TTSStatus{
		SessionID: sessionID,
		Target:    b.target,
		Completed: !cancelled,
		Cancelled: cancelled,
		Timestamp: time.Now().UTC(),
	}
	return b.pub.PublishJSON(protocol.SubjectTTSDone, status)
}

// FileSink collects a session's audio and writes it to disk when the session
// completes. PCM is wrapped as WAV; encoded payloads are written verbatim with
// the extension swapped for the codec.
type FileSink struct {
	path  string
	mu    sync.Mutex
	clips map[string]*clip
	last  string
}

type clip struct {
	format     string
	sampleRate int
	channels   int
	data       []byte
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path, clips: make(map[string]*clip)}
}

func (f *FileSink) Write(_ context.Context, chunk SynthChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.clips[chunk.SessionID]
	if c == nil {
		c = &clip{format: chunk.Format, sampleRate: chunk.SampleRate, channels: chunk.Channels}
		f.clips[chunk.SessionID] = c
	}
	c.data = append(c.data, chunk.PCM...)
	return nil
}

func (f *FileSink) Finish(_ context.Context, sessionID string, cancelled bool) error {
	f.mu.Lock()
	c := f.clips[sessionID]
	delete(f.clips, sessionID)
	f.mu.Unlock()
	if cancelled || c == nil {
		return nil
	}

	path := f.path
	if c.format != FormatPCM16 && c.format != "" {
		path = strings.TrimSuffix(path, filepath.Ext(path)) + "." + c.format
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	if c.format == FormatPCM16 || c.format == "" {
		out, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := audio.WritePCM(out, c.data, c.sampleRate, c.channels); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
	} else if err := os.WriteFile(path, c.data, 0o644); err != nil {
		return err
	}

	f.mu.Lock()
	f.last = path
	f.mu.Unlock()
	return nil
}

// LastPath reports the file written by the most recent completed session.
func (f *FileSink) LastPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}
