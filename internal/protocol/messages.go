package protocol

import "time"

// AudioFrame represents PCM audio data streamed from a capture device.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// Transcript represents a recognized and translated utterance broadcast on the bus.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Translated string    `json:"translated"`
	Language   string    `json:"language"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
}

// AudioChunk carries synthesized speech to playback devices.
type AudioChunk struct {
	SessionID  string `json:"session_id"`
	Target     string `json:"target"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Sequence   int    `json:"sequence"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

type TTSStatus struct {
	SessionID string    `json:"session_id"`
	Target    string    `json:"target"`
	Completed bool      `json:"completed"`
	Cancelled bool      `json:"cancelled,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Command is the payload accepted on the narration command subjects.
type Command struct {
	Text     string `json:"text,omitempty"`
	FileName string `json:"file_name,omitempty"`
	Content  []byte `json:"content,omitempty"`
}

// Reply answers a command with the resulting controller state.
type Reply struct {
	State any    `json:"state"`
	Error string `json:"error,omitempty"`
}

const (
	SubjectAudioFramePrefix = "audio.frame"
	SubjectTranscript       = "stt.text.final"
	SubjectTTSAudio         = "tts.audio"
	SubjectTTSDone          = "tts.done"

	SubjectNarrationStatus = "narration.status"
	SubjectCommandLoad     = "narration.cmd.load"
	SubjectCommandText     = "narration.cmd.text"
	SubjectCommandSpeak    = "narration.cmd.speak"
	SubjectCommandStop     = "narration.cmd.stop"
	SubjectCommandRecord   = "narration.cmd.record"
)
