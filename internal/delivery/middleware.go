package delivery

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Vovarama1992/transcriber/internal/metrics"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

type Middleware struct {
	log     *logger.ZapLogger
	metrics *metrics.Metrics
}

func NewMiddleware(log *logger.ZapLogger, m *metrics.Metrics) *Middleware {
	return &Middleware{log: log, metrics: m}
}

// Logger logs every request once and feeds the HTTP metrics.
func (m *Middleware) Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			took := time.Since(start)
			status := ww.Status()
			if status == 0 {
				// хендлер ничего не записал (или соединение захвачено вебсокетом)
				status = http.StatusOK
			}

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(status), took.Seconds())

			level := "info"
			if status >= http.StatusInternalServerError {
				level = "error"
			}
			m.log.Log(logger.LogEntry{
				Level:   level,
				Message: "http request",
				Fields: map[string]any{
					"request_id": middleware.GetReqID(r.Context()),
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     status,
					"bytes":      ww.BytesWritten(),
					"duration":   took.String(),
				},
			})
		}()

		next.ServeHTTP(ww, r)
	})
}

// Recoverer turns a handler panic into the usual JSON error envelope.
// chi's Recoverer stays outside it for panics in the middleware chain.
func (m *Middleware) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err := &ports.DecodeError{Type: "panic", Err: fmt.Errorf("panic: %v", rec)}
			m.log.Log(logger.LogEntry{
				Level:   "error",
				Message: "[PANIC] handler",
				Fields: map[string]any{
					"request_id": middleware.GetReqID(r.Context()),
					"path":       r.URL.Path,
				},
				Error: err,
			})
			writeError(w, err)
		}()

		next.ServeHTTP(w, r)
	})
}
