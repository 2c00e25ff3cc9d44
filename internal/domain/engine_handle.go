package domain

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Vovarama1992/transcriber/internal/models"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

// EngineHandle is the process-wide engine reference. It is initialized
// exactly once in NewEngineHandle; a failed init leaves it Unavailable
// for the life of the process.
type EngineHandle struct {
	engine  ports.Engine
	name    string
	initErr error
	sem     *semaphore.Weighted
	log     *zap.Logger
}

func NewEngineHandle(name string, factory func() (ports.Engine, error), maxConcurrent int, log *zap.Logger) *EngineHandle {
	if log == nil {
		log = zap.NewNop()
	}
	h := &EngineHandle{name: name, log: log.Named("engine")}
	if maxConcurrent > 0 {
		h.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}

	eng, err := factory()
	if err != nil {
		h.initErr = err
		h.log.Error("engine init failed, staying unavailable",
			zap.String("backend", name), zap.Error(err))
		return h
	}
	h.engine = eng
	h.log.Info("engine ready",
		zap.String("backend", eng.Name()), zap.Int("max_concurrent", maxConcurrent))
	return h
}

func (h *EngineHandle) Ready() bool { return h.engine != nil }

func (h *EngineHandle) Name() string {
	if h.engine != nil {
		return h.engine.Name()
	}
	return h.name
}

// InitError is the reason the handle is Unavailable, nil when ready.
func (h *EngineHandle) InitError() error { return h.initErr }

// Decode fails fast with ErrEngineUnavailable without touching the audio
// when init failed. Engine errors are returned as-is so callers can tell
// ports.ErrUnsupportedParameters apart; a panic becomes a ports.DecodeError.
func (h *EngineHandle) Decode(ctx context.Context, req models.InferenceRequest) (out *ports.EngineOutput, err error) {
	if h.engine == nil {
		return nil, ports.ErrEngineUnavailable
	}

	if h.sem != nil {
		if err := h.sem.Acquire(ctx, 1); err != nil {
			return nil, &ports.DecodeError{Type: "context", Err: fmt.Errorf("wait for engine slot: %w", err)}
		}
		defer h.sem.Release(1)
	}

	defer func() {
		if r := recover(); r != nil {
			h.log.Error("engine panic", zap.Any("panic", r), zap.String("audio", req.AudioPath))
			out = nil
			err = &ports.DecodeError{Type: "panic", Err: fmt.Errorf("engine panic: %v", r)}
		}
	}()

	return h.engine.Decode(ctx, req)
}

func (h *EngineHandle) Close() error {
	if h.engine == nil {
		return nil
	}
	return h.engine.Close()
}
