package ports

import (
	"context"

	"github.com/Vovarama1992/transcriber/internal/models"
)

type TranscriptRepository interface {
	Save(ctx context.Context, rec *models.TranscriptRecord) error
	Recent(ctx context.Context, limit int) ([]models.TranscriptRecord, error)
	Close() error
}
