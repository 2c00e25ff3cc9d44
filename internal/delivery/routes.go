package delivery

import (
	"net/http"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Vovarama1992/transcriber/internal/metrics"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

type RouterOptions struct {
	CORSOrigins []string
	StreamPath  string
	Stream      http.Handler
	Metrics     *metrics.Metrics
}

func NewRouter(h *TranscribeHandler, gate ports.AccessGate, log *logger.ZapLogger, opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	mw := NewMiddleware(log, opts.Metrics)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Use(middleware.RequestID)
	r.Use(mw.Logger)
	r.Use(middleware.Recoverer)
	r.Use(mw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	RegisterRoutes(r, h, gate, log, opts)
	return r
}

func RegisterRoutes(r chi.Router, h *TranscribeHandler, gate ports.AccessGate, log *logger.ZapLogger, opts RouterOptions) {
	// публичные
	r.Get("/", h.Root)
	r.Handle("/metrics", opts.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(gate, log))

		r.Get("/health", h.Health)
		r.Post("/transcribe", h.Transcribe)
		r.Post("/detect-language", h.DetectLanguage)
		r.Get("/history", h.History)

		if opts.Stream != nil {
			path := opts.StreamPath
			if path == "" {
				path = "/ws"
			}
			r.Get(path, opts.Stream.ServeHTTP)
		}
	})
}
