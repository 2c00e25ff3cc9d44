package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Vovarama1992/transcriber/internal/models"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

// transcriptColumns is shared by INSERT and SELECT; RowToStructByName maps
// each name to a db tag of models.TranscriptRecord.
const transcriptColumns = `id, source, kind, language, probability, text, success,
	error_kind, vad_requested, vad_applied, duration_ms, created_at`

type PostgresTranscriptRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresTranscriptRepo(ctx context.Context, pool *pgxpool.Pool) (ports.TranscriptRepository, error) {
	r := &PostgresTranscriptRepo{pool: pool}
	if err := r.migrate(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PostgresTranscriptRepo) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS transcript (
			id            TEXT PRIMARY KEY,
			source        TEXT NOT NULL,
			kind          TEXT NOT NULL,
			language      TEXT NOT NULL DEFAULT '',
			probability   DOUBLE PRECISION NOT NULL DEFAULT 0,
			text          TEXT NOT NULL DEFAULT '',
			success       BOOLEAN NOT NULL,
			error_kind    TEXT NOT NULL DEFAULT '',
			vad_requested BOOLEAN NOT NULL DEFAULT FALSE,
			vad_applied   BOOLEAN NOT NULL DEFAULT FALSE,
			duration_ms   BIGINT NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_transcript_created_at ON transcript (created_at DESC);
	`
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate transcript: %w", err)
	}
	return nil
}

func (r *PostgresTranscriptRepo) Save(ctx context.Context, rec *models.TranscriptRecord) error {
	query := `INSERT INTO transcript (` + transcriptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.Source, rec.Kind, rec.Language, rec.Probability, rec.Text, rec.Success,
		rec.ErrorKind, rec.VADRequested, rec.VADApplied, rec.DurationMS, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

func (r *PostgresTranscriptRepo) Recent(ctx context.Context, limit int) ([]models.TranscriptRecord, error) {
	query := `SELECT ` + transcriptColumns + `
		FROM transcript
		ORDER BY created_at DESC
		LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("recent transcripts: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.TranscriptRecord])
	if err != nil {
		return nil, fmt.Errorf("scan transcripts: %w", err)
	}
	return out, nil
}

func (r *PostgresTranscriptRepo) Close() error {
	r.pool.Close()
	return nil
}
