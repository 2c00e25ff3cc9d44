package stations

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Vovarama1992/transcriber/internal/metrics"
	"github.com/Vovarama1992/transcriber/internal/models"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

type Decoder interface {
	Decode(ctx context.Context, req models.InferenceRequest) (*ports.EngineOutput, error)
}

type S4Decode struct {
	engine  Decoder
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewS4Decode(engine Decoder, log *zap.Logger, m *metrics.Metrics) *S4Decode {
	if log == nil {
		log = zap.NewNop()
	}
	return &S4Decode{engine: engine, log: log.Named("decode"), metrics: m}
}

// Run decodes req. When VAD is on and the engine rejects the parameter
// combination with ports.ErrUnsupportedParameters, the request is re-issued
// once without VAD. No other error is retried.
func (s *S4Decode) Run(ctx context.Context, req models.InferenceRequest) (*models.TranscriptionResult, error) {
	out, err := s.engine.Decode(ctx, req)
	vadApplied := req.VADEnabled

	if err != nil && req.VADEnabled && errors.Is(err, ports.ErrUnsupportedParameters) {
		s.log.Warn("vad rejected by engine, retrying without vad",
			zap.Float64("threshold", req.VADThreshold),
			zap.Error(err),
		)
		s.metrics.RecordVADFallback()

		plain := req
		plain.VADEnabled = false
		out, err = s.engine.Decode(ctx, plain)
		vadApplied = false
	}

	if err != nil {
		if errors.Is(err, ports.ErrEngineUnavailable) {
			return nil, err
		}
		return nil, ports.NewDecodeError(err)
	}
	if out == nil {
		out = &ports.EngineOutput{}
	}

	result := &models.TranscriptionResult{
		Segments:           out.Segments,
		FullText:           models.JoinSegments(out.Segments),
		DetectedLanguage:   out.Language,
		LanguageConfidence: out.LanguageProbability,
		VADApplied:         vadApplied,
	}
	if vadApplied {
		th := req.VADThreshold
		result.VADThresholdUsed = &th
	}
	return result, nil
}
