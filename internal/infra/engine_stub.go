package infra

import (
	"context"
	"fmt"
	"os"

	"github.com/Vovarama1992/transcriber/internal/models"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

// StubEngine decodes nothing: the text is derived from the artifact size.
// It stands in for a real backend in development and tests.
type StubEngine struct{}

func NewStubEngine() *StubEngine { return &StubEngine{} }

func (e *StubEngine) Name() string { return "stub" }

func (e *StubEngine) Decode(ctx context.Context, req models.InferenceRequest) (*ports.EngineOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.VADEnabled && (req.VADThreshold < 0 || req.VADThreshold > 1) {
		return nil, fmt.Errorf("vad threshold %v: %w", req.VADThreshold, ports.ErrUnsupportedParameters)
	}

	fi, err := os.Stat(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("stub: %w", err)
	}

	var text string
	switch req.Task {
	case models.TaskTranscribe, "":
		text = fmt.Sprintf("[stub] %d bytes", fi.Size())
	case models.TaskTranslate:
		text = fmt.Sprintf("[stub:translate] %d bytes", fi.Size())
	default:
		return nil, fmt.Errorf("stub: unsupported task %q", req.Task)
	}

	lang := req.LanguageHint
	if lang == "" {
		lang = "en"
	}
	return &ports.EngineOutput{
		Segments:            []models.TranscriptSegment{{Text: text}},
		Language:            lang,
		LanguageProbability: 0.99,
	}, nil
}

func (e *StubEngine) Close() error { return nil }
