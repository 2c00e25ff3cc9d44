package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Vovarama1992/transcriber/internal/domain/stations"
	"github.com/Vovarama1992/transcriber/internal/metrics"
	"github.com/Vovarama1992/transcriber/internal/models"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

const historyWriteTimeout = 5 * time.Second

// Coordinator runs one unit of audio through ingest → vad → decode. HTTP
// handlers and stream sessions share it; only the Source of the upload
// tells them apart.
type Coordinator struct {
	engine *EngineHandle

	s1 *stations.S1Ingest
	s2 *stations.S2VAD
	s4 *stations.S4Decode

	repo    ports.TranscriptRepository
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewCoordinator(
	engine *EngineHandle,
	s1 *stations.S1Ingest,
	s2 *stations.S2VAD,
	s4 *stations.S4Decode,
	repo ports.TranscriptRepository,
	log *zap.Logger,
	m *metrics.Metrics,
) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		engine:  engine,
		s1:      s1,
		s2:      s2,
		s4:      s4,
		repo:    repo,
		log:     log.Named("coordinator"),
		metrics: m,
	}
}

func (c *Coordinator) EngineReady() bool  { return c.engine.Ready() }
func (c *Coordinator) EngineName() string { return c.engine.Name() }

// Transcribe is the full one-shot flow. The caller has already passed the
// access gate.
func (c *Coordinator) Transcribe(ctx context.Context, up models.Upload, params models.TranscribeParams) (*models.TranscriptionResult, error) {
	start := time.Now()
	log := c.log.With(zap.String("source", up.Source), zap.String("file", up.Filename))
	log.Debug("[RECEIVED]")

	vad := c.s2.Run(params)
	task := models.Task(params.Task)
	if task == "" {
		task = models.TaskTranscribe
	}

	res, err := c.run(ctx, log, up, models.InferenceRequest{
		LanguageHint: params.Language,
		Task:         task,
		VADEnabled:   vad.Enabled,
		VADThreshold: vad.Threshold,
	})
	if res != nil {
		res.VADRequested = vad.Enabled
		res.VADThreshold = vad.Threshold
	}
	c.finish(ctx, log, up.Source, "transcribe", vad.Enabled, res, err, start)
	return res, err
}

// DetectLanguage decodes with default parameters and keeps only the
// language and its confidence.
func (c *Coordinator) DetectLanguage(ctx context.Context, up models.Upload) (*models.TranscriptionResult, error) {
	start := time.Now()
	log := c.log.With(zap.String("source", up.Source), zap.String("file", up.Filename))
	log.Debug("[RECEIVED]")

	res, err := c.run(ctx, log, up, models.InferenceRequest{Task: models.TaskTranscribe})
	if res != nil {
		res = &models.TranscriptionResult{
			DetectedLanguage:   res.DetectedLanguage,
			LanguageConfidence: res.LanguageConfidence,
		}
	}
	c.finish(ctx, log, up.Source, "detect", false, res, err, start)
	return res, err
}

// run owns the artifact: once ingest succeeds, the deferred Release runs on
// every way out, panics included. A panic in ingest or decode comes back
// as a typed error.
func (c *Coordinator) run(ctx context.Context, log *zap.Logger, up models.Upload, req models.InferenceRequest) (res *models.TranscriptionResult, err error) {
	log.Debug("[ADMITTED]")

	defer func() {
		if r := recover(); r != nil {
			log.Error("[PANIC]", zap.Any("panic", r), zap.String("audio", req.AudioPath))
			res = nil
			err = &ports.DecodeError{Type: "panic", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	artifact, err := c.s1.Run(ctx, up)
	if err != nil {
		return nil, err
	}

	defer func() {
		if rerr := artifact.Release(); rerr != nil {
			log.Warn("[CLEANUP][FAIL]", zap.String("artifact", artifact.Path), zap.Error(rerr))
		}
	}()

	log.Debug("[INGESTED]", zap.String("artifact", artifact.Path), zap.Int64("bytes", artifact.Size))
	req.AudioPath = artifact.Path

	// отключение клиента не прерывает декодирование, артефакт всё равно удалится
	res, err = c.s4.Run(context.WithoutCancel(ctx), req)
	if err != nil {
		return nil, err
	}
	log.Debug("[DECODED]", zap.Bool("vad_applied", res.VADApplied), zap.String("language", res.DetectedLanguage))
	return res, nil
}

func (c *Coordinator) finish(
	ctx context.Context,
	log *zap.Logger,
	source, kind string,
	vadRequested bool,
	res *models.TranscriptionResult,
	err error,
	start time.Time,
) {
	took := time.Since(start)

	rec := &models.TranscriptRecord{
		ID:           uuid.NewString(),
		Source:       source,
		Kind:         kind,
		Success:      err == nil,
		VADRequested: vadRequested,
		DurationMS:   took.Milliseconds(),
		CreatedAt:    start.UTC(),
	}

	if err != nil {
		errKind := KindOf(err)
		rec.ErrorKind = string(errKind)
		c.metrics.RecordDecodeFailure(source, rec.ErrorKind)

		fields := []zap.Field{zap.String("error_kind", rec.ErrorKind), zap.Duration("took", took), zap.Error(err)}
		switch errKind {
		case KindEngineDecodeError:
			log.Error("[FAILED]", append(fields, zap.String("error_type", ErrorType(err)))...)
		case KindEngineUnavailable:
			log.Warn("[FAILED]", fields...)
		default:
			log.Info("[FAILED]", fields...)
		}
	} else {
		rec.Language = res.DetectedLanguage
		rec.Probability = res.LanguageConfidence
		rec.Text = res.FullText
		rec.VADApplied = res.VADApplied
		c.metrics.RecordDecode(source, kind, took.Seconds())

		log.Info("[RESPONDED]",
			zap.String("kind", kind),
			zap.String("language", res.DetectedLanguage),
			zap.Bool("vad_applied", res.VADApplied),
			zap.Duration("took", took),
		)
	}

	c.save(ctx, log, rec)
}

// save is best effort: history never changes the response.
func (c *Coordinator) save(ctx context.Context, log *zap.Logger, rec *models.TranscriptRecord) {
	if c.repo == nil {
		return
	}
	// запрос входа мог быть отклонён до движка; такие не пишем
	if rec.ErrorKind == string(KindNoInputProvided) || rec.ErrorKind == string(KindPayloadTooLarge) {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
	defer cancel()
	if err := c.repo.Save(ctx, rec); err != nil {
		log.Warn("[HISTORY][FAIL]", zap.String("id", rec.ID), zap.Error(err))
	}
}

// Recent returns the newest history records, empty when history is off.
func (c *Coordinator) Recent(ctx context.Context, limit int) ([]models.TranscriptRecord, error) {
	if c.repo == nil {
		return []models.TranscriptRecord{}, nil
	}
	return c.repo.Recent(ctx, limit)
}
