package tts

import "context"

// Audio formats carried by SynthChunk.
const (
	FormatPCM16 = "pcm_s16le"
	FormatMP3   = "mp3"
)

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	SessionID string
	Text      string
	Voice     string
	Language  string
}

// SynthChunk contains synthesized audio. PCM holds raw samples when Format is
// FormatPCM16 and the encoded payload otherwise.
type SynthChunk struct {
	SessionID  string
	Sequence   int
	Format     string
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Synthesizer is the contract for producing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error)
}

// FixedVoicer is implemented by backends that speak with a voice from their
// own configuration rather than one picked from the on-device voice list.
type FixedVoicer interface {
	FixedVoice() string
}
