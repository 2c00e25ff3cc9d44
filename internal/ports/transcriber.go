package ports

import (
	"context"

	"github.com/Vovarama1992/transcriber/internal/models"
)

type Transcriber interface {
	Transcribe(ctx context.Context, up models.Upload, params models.TranscribeParams) (*models.TranscriptionResult, error)
	DetectLanguage(ctx context.Context, up models.Upload) (*models.TranscriptionResult, error)
	EngineReady() bool
	EngineName() string
}

type TranscriptHistory interface {
	Recent(ctx context.Context, limit int) ([]models.TranscriptRecord, error)
}
