package ports

import (
	"context"

	"github.com/Vovarama1992/transcriber/internal/models"
)

type EngineOutput struct {
	Segments            []models.TranscriptSegment
	Language            string
	LanguageProbability float64
}

type Engine interface {
	Name() string
	Decode(ctx context.Context, req models.InferenceRequest) (*EngineOutput, error)
	Close() error
}
