package models

import "strings"

type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

// InferenceRequest is built once per decode and never mutated afterwards.
type InferenceRequest struct {
	AudioPath    string
	LanguageHint string // empty means auto-detect
	Task         Task
	VADEnabled   bool
	VADThreshold float64
}

type TranscriptSegment struct {
	Text  string   `json:"text"`
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
}

type TranscriptionResult struct {
	Segments           []TranscriptSegment
	FullText           string
	DetectedLanguage   string
	LanguageConfidence float64
	VADApplied         bool
	VADThresholdUsed   *float64

	// что просил клиент; после фолбэка VADApplied=false, а эти поля остаются
	VADRequested bool
	VADThreshold float64
}

// JoinSegments concatenates segment texts in order with a single space.
func JoinSegments(segments []TranscriptSegment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}
