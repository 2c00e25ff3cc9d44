package models

import "time"

type TranscriptRecord struct {
	ID           string    `db:"id" json:"id"`
	Source       string    `db:"source" json:"source"` // "http" или "stream"
	Kind         string    `db:"kind" json:"kind"`     // "transcribe" или "detect"
	Language     string    `db:"language" json:"language"`
	Probability  float64   `db:"probability" json:"language_probability"`
	Text         string    `db:"text" json:"text"`
	Success      bool      `db:"success" json:"success"`
	ErrorKind    string    `db:"error_kind" json:"error_kind,omitempty"`
	VADRequested bool      `db:"vad_requested" json:"vad_requested"`
	VADApplied   bool      `db:"vad_applied" json:"vad_applied"`
	DurationMS   int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
