package ws

const (
	TypeConnection    = "connection"
	TypeTranscription = "transcription"
	TypeError         = "error"
	TypeInit          = "init"

	StatusConnected   = "connected"
	StatusInitialized = "initialized"
	StatusClosing     = "closing"

	EncodingPCM = "pcm_s16le"
)

type connectionMessage struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type transcriptionMessage struct {
	Type                string  `json:"type"`
	Text                string  `json:"text"`
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
	Success             bool    `json:"success"`
}

type errorMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Success   bool   `json:"success"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// initMessage configures the session; absent fields keep current values.
type initMessage struct {
	Type          string  `json:"type"`
	Language      *string `json:"language"`
	Task          *string `json:"task"`
	VADFilter     *bool   `json:"vad_filter"`
	VADParameters *string `json:"vad_parameters"`
	Encoding      *string `json:"encoding"`
	SampleRate    *int    `json:"sample_rate"`
}
