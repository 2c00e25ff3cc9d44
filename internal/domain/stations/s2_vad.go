package stations

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Vovarama1992/transcriber/internal/models"
)

const DefaultVADThreshold = 0.5

// EffectiveVAD is what the decode step actually asks the engine for.
type EffectiveVAD struct {
	Enabled   bool
	Threshold float64
}

type S2VAD struct {
	defaultThreshold float64
	log              *zap.Logger
}

func NewS2VAD(defaultThreshold float64, log *zap.Logger) *S2VAD {
	if log == nil {
		log = zap.NewNop()
	}
	return &S2VAD{defaultThreshold: defaultThreshold, log: log.Named("vad")}
}

func (s *S2VAD) Run(params models.TranscribeParams) EffectiveVAD {
	if !params.VADFilter {
		return EffectiveVAD{Threshold: s.defaultThreshold}
	}

	threshold := ParseVADParameters(params.VADParameters, s.defaultThreshold)
	if threshold < 0 || threshold > 1 {
		// пусть движок решает; может отклонить, тогда сработает фолбэк
		s.log.Warn("vad threshold out of range, passing through",
			zap.Float64("threshold", threshold))
	}
	return EffectiveVAD{Enabled: true, Threshold: threshold}
}

// ParseVADParameters reads "key=value" pairs separated by commas. Only
// threshold is recognized. Malformed pairs and unparsable values are
// skipped one by one; the last valid threshold wins.
func ParseVADParameters(raw string, fallback float64) float64 {
	threshold := fallback
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(key) != "threshold" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			continue
		}
		threshold = v
	}
	return threshold
}
