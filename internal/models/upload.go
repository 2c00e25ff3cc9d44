package models

import "io"

// Upload is raw audio as received from a transport, before ingestion.
type Upload struct {
	Filename string
	Body     io.Reader
	Source   string // "http" или "stream"
	// PCM is set when Body carries headerless 16-bit PCM that needs a WAV header.
	PCM *PCMFormat
}

type PCMFormat struct {
	SampleRate int
	Channels   int
}

// TranscribeParams are the caller-facing knobs, still unparsed.
type TranscribeParams struct {
	Language      string
	Task          string
	VADFilter     bool
	VADParameters string
}
