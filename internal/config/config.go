package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	TraceExporter  string `yaml:"trace_exporter"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind           string   `yaml:"bind"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Translation TranslationConfig `yaml:"translation"`
	STT         STTConfig         `yaml:"stt"`
	TTS         TTSConfig         `yaml:"tts"`
	Export      ExportConfig      `yaml:"export"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// TranslationConfig points at the machine-translation endpoint. A zero timeout
// means requests are never cut short.
type TranslationConfig struct {
	Endpoint         string `yaml:"endpoint"`
	SourceLang       string `yaml:"source_lang"`
	SpeechTarget     string `yaml:"speech_target"`
	TranscriptTarget string `yaml:"transcript_target"`
	FailureText      string `yaml:"failure_text"`
	TimeoutMS        int    `yaml:"timeout_ms"`
}

type STTConfig struct {
	Mode       string `yaml:"mode"` // mock, exec, none
	Command    string `yaml:"command"`
	ModelPath  string `yaml:"model_path"`
	Language   string `yaml:"language"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	Device     string `yaml:"device"`
}

type VoiceConfig struct {
	Name string `yaml:"name"`
	Lang string `yaml:"lang"`
}

type VoiceRSSConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Voice    string `yaml:"voice"`
	Rate     int    `yaml:"rate"`
	Codec    string `yaml:"codec"`
	Format   string `yaml:"format"`
}

type TTSConfig struct {
	Mode       string         `yaml:"mode"` // mock, exec, voicerss, none
	Command    string         `yaml:"command"`
	Language   string         `yaml:"language"`
	Voices     []VoiceConfig  `yaml:"voices"`
	SampleRate int            `yaml:"sample_rate"`
	Channels   int            `yaml:"channels"`
	Target     string         `yaml:"target"`
	VoiceRSS   VoiceRSSConfig `yaml:"voicerss"`
}

type ExportConfig struct {
	Filename  string `yaml:"filename"`
	Directory string `yaml:"directory"`
}

func Default() Config {
	return Config{
		RuntimeName: "nativespeaker",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			TraceExporter:  "stdout",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Translation: TranslationConfig{
			Endpoint:         "https://translate.googleapis.com/translate_a/single",
			SourceLang:       "auto",
			SpeechTarget:     "zh-HK",
			TranscriptTarget: "zh-TW",
			FailureText:      "Translation failed.",
		},
		STT: STTConfig{
			Mode:       "mock",
			Language:   "yue-Hant-HK",
			SampleRate: 16000,
			Channels:   1,
			Device:     "mic",
		},
		TTS: TTSConfig{
			Mode:       "mock",
			Language:   "zh-HK",
			SampleRate: 22050,
			Channels:   1,
			Target:     "default",
			VoiceRSS: VoiceRSSConfig{
				Endpoint: "https://api.voicerss.org/",
				Voice:    "Jia",
				Rate:     0,
				Codec:    "MP3",
				Format:   "44khz_16bit_stereo",
			},
		},
		Export: ExportConfig{
			Filename:  "transcription.txt",
			Directory: ".",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// A missing .env is the common case.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "NATIVESPEAKER_RUNTIME_NAME")
	overrideString(&cfg.Environment, "NATIVESPEAKER_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "NATIVESPEAKER_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "NATIVESPEAKER_HTTP_PORT")
	overrideStringSlice(&cfg.HTTP.AllowedOrigins, "NATIVESPEAKER_HTTP_ALLOWED_ORIGINS")
	overrideString(&cfg.Telemetry.LogLevel, "NATIVESPEAKER_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "NATIVESPEAKER_TELEMETRY_TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "NATIVESPEAKER_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "NATIVESPEAKER_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "NATIVESPEAKER_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "NATIVESPEAKER_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "NATIVESPEAKER_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "NATIVESPEAKER_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "NATIVESPEAKER_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "NATIVESPEAKER_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "NATIVESPEAKER_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "NATIVESPEAKER_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "NATIVESPEAKER_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "NATIVESPEAKER_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "NATIVESPEAKER_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Translation.Endpoint, "NATIVESPEAKER_TRANSLATION_ENDPOINT")
	overrideString(&cfg.Translation.SourceLang, "NATIVESPEAKER_TRANSLATION_SOURCE_LANG")
	overrideString(&cfg.Translation.SpeechTarget, "NATIVESPEAKER_TRANSLATION_SPEECH_TARGET")
	overrideString(&cfg.Translation.TranscriptTarget, "NATIVESPEAKER_TRANSLATION_TRANSCRIPT_TARGET")
	overrideString(&cfg.Translation.FailureText, "NATIVESPEAKER_TRANSLATION_FAILURE_TEXT")
	overrideInt(&cfg.Translation.TimeoutMS, "NATIVESPEAKER_TRANSLATION_TIMEOUT_MS")
	overrideString(&cfg.STT.Mode, "NATIVESPEAKER_STT_MODE")
	overrideString(&cfg.STT.Command, "NATIVESPEAKER_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "NATIVESPEAKER_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "NATIVESPEAKER_STT_LANGUAGE")
	overrideInt(&cfg.STT.SampleRate, "NATIVESPEAKER_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.Channels, "NATIVESPEAKER_STT_CHANNELS")
	overrideString(&cfg.STT.Device, "NATIVESPEAKER_STT_DEVICE")
	overrideString(&cfg.TTS.Mode, "NATIVESPEAKER_TTS_MODE")
	overrideString(&cfg.TTS.Command, "NATIVESPEAKER_TTS_COMMAND")
	overrideString(&cfg.TTS.Language, "NATIVESPEAKER_TTS_LANGUAGE")
	overrideInt(&cfg.TTS.SampleRate, "NATIVESPEAKER_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "NATIVESPEAKER_TTS_CHANNELS")
	overrideString(&cfg.TTS.Target, "NATIVESPEAKER_TTS_TARGET")
	overrideString(&cfg.TTS.VoiceRSS.Endpoint, "NATIVESPEAKER_VOICERSS_ENDPOINT")
	overrideString(&cfg.TTS.VoiceRSS.APIKey, "NATIVESPEAKER_VOICERSS_API_KEY")
	overrideString(&cfg.TTS.VoiceRSS.Voice, "NATIVESPEAKER_VOICERSS_VOICE")
	overrideInt(&cfg.TTS.VoiceRSS.Rate, "NATIVESPEAKER_VOICERSS_RATE")
	overrideString(&cfg.TTS.VoiceRSS.Codec, "NATIVESPEAKER_VOICERSS_CODEC")
	overrideString(&cfg.TTS.VoiceRSS.Format, "NATIVESPEAKER_VOICERSS_FORMAT")
	overrideString(&cfg.Export.Filename, "NATIVESPEAKER_EXPORT_FILENAME")
	overrideString(&cfg.Export.Directory, "NATIVESPEAKER_EXPORT_DIRECTORY")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Telemetry.TraceExporter {
	case "stdout", "none":
	case "otlp":
		if strings.TrimSpace(cfg.Telemetry.OTLPEndpoint) == "" {
			return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
		}
	default:
		return errors.New("telemetry.trace_exporter must be one of stdout|otlp|none")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Translation.Endpoint == "" {
		return errors.New("translation.endpoint must not be empty")
	}
	if cfg.Translation.SpeechTarget == "" || cfg.Translation.TranscriptTarget == "" {
		return errors.New("translation targets must not be empty")
	}
	if cfg.Translation.TimeoutMS < 0 {
		return errors.New("translation.timeout_ms must be >= 0")
	}
	switch cfg.STT.Mode {
	case "mock", "exec", "none":
	default:
		return errors.New("stt.mode must be one of mock|exec|none")
	}
	if cfg.STT.Mode != "none" {
		if cfg.STT.SampleRate <= 0 {
			return errors.New("stt.sample_rate must be positive")
		}
		if cfg.STT.Channels <= 0 {
			return errors.New("stt.channels must be positive")
		}
		if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	}
	switch cfg.TTS.Mode {
	case "mock", "exec", "voicerss", "none":
	default:
		return errors.New("tts.mode must be one of mock|exec|voicerss|none")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.Mode == "voicerss" && cfg.TTS.VoiceRSS.Endpoint == "" {
		return errors.New("tts.voicerss.endpoint must be set when mode=voicerss")
	}
	if cfg.TTS.Mode != "none" {
		if cfg.TTS.SampleRate <= 0 {
			return errors.New("tts.sample_rate must be positive")
		}
		if cfg.TTS.Channels <= 0 {
			return errors.New("tts.channels must be positive")
		}
	}
	if cfg.Export.Filename == "" {
		return errors.New("export.filename must not be empty")
	}
	return nil
}
