package stt

import (
	"fmt"

	"github.com/inchinet/nativespeaker/internal/config"
)

// New builds the recognizer selected by cfg.Mode. Mode "none" yields nil.
func New(cfg config.STTConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockRecognizer(), nil
	case "exec":
		return NewExecRecognizer(cfg)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported stt mode %q", cfg.Mode)
	}
}
