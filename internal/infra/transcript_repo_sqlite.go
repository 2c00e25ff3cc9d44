package infra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Vovarama1992/transcriber/internal/models"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

// created_at хранится текстом фиксированной ширины, чтобы ORDER BY работал лексикографически
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteTranscriptRepo is the embedded history store for single-host runs.
type SQLiteTranscriptRepo struct {
	db  *sql.DB
	log *zap.Logger
}

func NewSQLiteTranscriptRepo(dsn string, log *zap.Logger) (ports.TranscriptRepository, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// modernc sqlite не любит параллельных писателей
	db.SetMaxOpenConns(1)

	r := &SQLiteTranscriptRepo{db: db, log: log.Named("sqlite-transcripts")}
	if err := r.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteTranscriptRepo) initDB() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			kind TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			probability REAL NOT NULL DEFAULT 0,
			text TEXT NOT NULL DEFAULT '',
			success INTEGER NOT NULL,
			error_kind TEXT NOT NULL DEFAULT '',
			vad_requested INTEGER NOT NULL DEFAULT 0,
			vad_applied INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transcripts table: %w", err)
	}
	_, err = r.db.Exec(`CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create transcripts index: %w", err)
	}
	return nil
}

func (r *SQLiteTranscriptRepo) Save(ctx context.Context, rec *models.TranscriptRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transcripts
		(id, source, kind, language, probability, text, success, error_kind, vad_requested, vad_applied, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Source, rec.Kind, rec.Language, rec.Probability, rec.Text, rec.Success,
		rec.ErrorKind, rec.VADRequested, rec.VADApplied, rec.DurationMS,
		rec.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transcript: %w", err)
	}
	return nil
}

func (r *SQLiteTranscriptRepo) Recent(ctx context.Context, limit int) ([]models.TranscriptRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, source, kind, language, probability, text, success, error_kind,
			vad_requested, vad_applied, duration_ms, created_at
		FROM transcripts
		ORDER BY created_at DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	out := []models.TranscriptRecord{}
	for rows.Next() {
		var (
			rec       models.TranscriptRecord
			createdAt string
		)
		if err := rows.Scan(
			&rec.ID, &rec.Source, &rec.Kind, &rec.Language, &rec.Probability, &rec.Text,
			&rec.Success, &rec.ErrorKind, &rec.VADRequested, &rec.VADApplied, &rec.DurationMS,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}
		rec.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt)
		if err != nil {
			r.log.Warn("bad created_at", zap.String("id", rec.ID), zap.String("value", createdAt))
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteTranscriptRepo) Close() error {
	return r.db.Close()
}
