package tts

import (
	"strings"

	"github.com/inchinet/nativespeaker/internal/config"
)

// Voice is an installed synthesizer voice.
type Voice struct {
	Name string
	Lang string
}

// VoicesFromConfig lists the voices declared for the on-device synthesizer.
func VoicesFromConfig(cfg config.TTSConfig) []Voice {
	voices := make([]Voice, 0, len(cfg.Voices))
	for _, v := range cfg.Voices {
		voices = append(voices, Voice{Name: v.Name, Lang: v.Lang})
	}
	return voices
}

// SelectVoice picks the first voice for lang, falling back to any Cantonese
// voice. ok is false when nothing matches and the backend default should be used.
func SelectVoice(voices []Voice, lang string) (voice Voice, ok bool) {
	for _, v := range voices {
		if strings.EqualFold(v.Lang, lang) || strings.EqualFold(v.Lang, "yue-HK") || strings.Contains(v.Name, "Cantonese") {
			return v, true
		}
	}
	return Voice{}, false
}
