package tts

import (
	"fmt"

	"github.com/inchinet/nativespeaker/internal/config"
)

// New builds the synthesizer selected by cfg.Mode. Mode "none" yields nil.
func New(cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	case "voicerss":
		return NewVoiceRSSSynth(cfg.VoiceRSS, cfg.SampleRate, cfg.Channels), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
}
