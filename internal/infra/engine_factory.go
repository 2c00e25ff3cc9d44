package infra

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Vovarama1992/transcriber/internal/config"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

// NewEngineFactory returns the constructor for the configured backend. It is
// called exactly once, by the engine handle at startup.
func NewEngineFactory(cfg config.EngineConfig, log *zap.Logger) func() (ports.Engine, error) {
	return func() (ports.Engine, error) {
		switch cfg.Backend {
		case config.BackendStub, "":
			return NewStubEngine(), nil
		case config.BackendWhisperHTTP:
			return NewWhisperHTTPEngine(cfg.Endpoint, cfg.APIKey, cfg.GetTimeout(), log)
		case config.BackendOpenAI:
			return NewOpenAIEngine(cfg.APIKey, cfg.Endpoint, cfg.Model, log)
		default:
			return nil, fmt.Errorf("unknown engine backend %q", cfg.Backend)
		}
	}
}
