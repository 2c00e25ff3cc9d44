package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/Vovarama1992/transcriber/internal/config"
	"github.com/Vovarama1992/transcriber/internal/delivery"
	ws "github.com/Vovarama1992/transcriber/internal/delivery/ws"
	"github.com/Vovarama1992/transcriber/internal/domain"
	"github.com/Vovarama1992/transcriber/internal/domain/stations"
	"github.com/Vovarama1992/transcriber/internal/infra"
	"github.com/Vovarama1992/transcriber/internal/metrics"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

const serviceName = "Transcriber Service"

func main() {
	// CONFIG
	cfg, err := config.Loader{}.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// LOGGER
	zcore, err := newZap(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer zcore.Sync()
	zl := logger.NewZapLogger(zcore.Sugar())

	if err := run(cfg, zcore, zl); err != nil {
		zl.Log(logger.LogEntry{Level: "error", Message: "server crashed", Error: err})
		os.Exit(1)
	}
}

func run(cfg config.Config, zcore *zap.Logger, zl *logger.ZapLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Auth.RequireAuth && cfg.Auth.APIToken == "" {
		zl.Log(logger.LogEntry{
			Level:   "info",
			Message: "WARN: require_auth is set but API_TOKEN is empty; every request will be rejected",
		})
	}

	m := metrics.NewMetrics()

	// ENGINE (один раз на процесс)
	handle := domain.NewEngineHandle(
		cfg.Engine.Backend,
		infra.NewEngineFactory(cfg.Engine, zcore),
		cfg.Engine.MaxConcurrent,
		zcore,
	)
	defer handle.Close()

	// STORAGE
	store, err := infra.NewTempArtifactStore(cfg.Ingest.TempDir, zcore)
	if err != nil {
		return fmt.Errorf("temp store: %w", err)
	}

	repo, err := openRepo(ctx, cfg.Storage, zcore)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if repo != nil {
		defer repo.Close()
	}

	// STATIONS
	s1 := stations.NewS1Ingest(store, cfg.Ingest.MaxUploadBytes, zcore, m)
	s2 := stations.NewS2VAD(cfg.VAD.DefaultThreshold, zcore)
	s4 := stations.NewS4Decode(handle, zcore, m)

	coord := domain.NewCoordinator(handle, s1, s2, s4, repo, zcore, m)
	gate := domain.NewAccessGate(cfg.Auth.RequireAuth, cfg.Auth.APIToken)

	// WS HUB
	hub := ws.NewHub(zl, m)
	wsHandler := ws.NewHandler(hub, coord, ws.Options{IdleTimeout: cfg.Stream.GetIdleTimeout()}, zl, m)

	// ROUTER
	h := delivery.NewTranscribeHandler(coord, coord, gate, cfg.Ingest.MaxUploadBytes, serviceName, zl)
	router := delivery.NewRouter(h, gate, zl, delivery.RouterOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		StreamPath:  cfg.Stream.Path,
		Stream:      wsHandler,
		Metrics:     m,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	if cfg.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConnections)
	}

	zl.Log(logger.LogEntry{
		Level:   "info",
		Message: "server started",
		Fields: map[string]any{
			"addr":         srv.Addr,
			"engine":       handle.Name(),
			"model_loaded": handle.Ready(),
			"storage":      cfg.Storage.Driver,
			"auth":         cfg.Auth.RequireAuth,
			"stream_path":  cfg.Stream.Path,
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Log(logger.LogEntry{Level: "info", Message: "shutting down"})

		// WS-соединения хайджекнуты, Shutdown их не ждёт
		hub.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newZap(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// openRepo returns a nil repository when history is disabled.
func openRepo(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (ports.TranscriptRepository, error) {
	switch cfg.Driver {
	case config.StoragePostgres:
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		pool, err := infra.NewPgxPool(pingCtx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		repo, err := infra.NewPostgresTranscriptRepo(pingCtx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return repo, nil
	case config.StorageSQLite:
		return infra.NewSQLiteTranscriptRepo(cfg.DSN, log)
	default:
		return nil, nil
	}
}
