package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func TestWritePCMRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xff, 0x7f, 0x00, 0x80, 0x10, 0x20}
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WritePCM(f, pcm, 16000, 1); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	f, err = os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, rate, channels, err := ReadPCM(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Fatalf("unexpected format %d/%d", rate, channels)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("pcm mismatch: %v != %v", got, pcm)
	}
}

func TestWritePCMRejectsOddLength(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "odd.wav"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := WritePCM(f, []byte{0x01}, 16000, 1); err == nil {
		t.Fatal("expected alignment error")
	}
}

func TestReadPCMRejectsOtherBitDepths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eight.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 8000, 8, 1, 1)
	buf := &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: 1, SampleRate: 8000}, Data: []int{0, 64, 128, 255}}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	f, err = os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, _, _, err := ReadPCM(f); err == nil || !strings.Contains(err.Error(), "bit depth 8") {
		t.Fatalf("expected bit depth error, got %v", err)
	}
}
