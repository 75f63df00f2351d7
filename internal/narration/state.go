package narration

import "errors"

// Status text shown next to the speak and record controls.
const (
	StatusReady                  = "Ready."
	StatusEmptyText              = "Please enter some text to speak."
	StatusTranslating            = "Translating text..."
	StatusGenerating             = "Generating audio..."
	StatusSpeaking               = "Speaking..."
	StatusMissingAPIKey          = "Please enter your VoiceRSS API key."
	StatusSynthesisUnsupported   = "Speech synthesis is not supported on this host."
	StatusListening              = "Listening..."
	StatusRecognitionUnsupported = "Speech recognition is not supported on this host."

	LabelRecord = "Record"
	LabelStop   = "Stop"

	// AlertNothingToDownload is the message surfaces show for ErrNothingToDownload.
	AlertNothingToDownload = "Nothing to download."

	pendingTranscriptFormat = "Original (Cantonese): %s\n\nTranslating..."
)

var (
	ErrNothingToDownload      = errors.New("nothing to download")
	ErrRecognitionUnavailable = errors.New("speech recognition unavailable")
)

// Snapshot is an immutable copy of the controller state. Version increases
// with every change so observers can drop stale deliveries.
type Snapshot struct {
	Version        uint64 `json:"version"`
	FileName       string `json:"file_name"`
	SourceText     string `json:"source_text"`
	Transcript     string `json:"transcript"`
	TTSStatus      string `json:"tts_status"`
	STTStatus      string `json:"stt_status"`
	Speaking       bool   `json:"speaking"`
	Recording      bool   `json:"recording"`
	SpeakDisabled  bool   `json:"speak_disabled"`
	RecordDisabled bool   `json:"record_disabled"`
	RecordLabel    string `json:"record_label"`
}

// Export is a transcript ready to be saved by the client.
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}
