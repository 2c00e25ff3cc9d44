package delivery

import (
	"net/http"
	"strings"

	"github.com/Vovarama1992/go-utils/logger"

	"github.com/Vovarama1992/transcriber/internal/ports"
)

// AuthMiddleware runs the access gate before anything else touches the
// request, so a rejected caller never allocates an artifact.
func AuthMiddleware(gate ports.AccessGate, log *logger.ZapLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := gate.Check(bearerToken(r.Header.Get("Authorization")))
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("WWW-Authenticate", "Bearer")
			status := writeError(w, err)

			log.Log(logger.LogEntry{
				Level:   "info",
				Message: "access denied",
				Fields: map[string]any{
					"path":   r.URL.Path,
					"status": status,
					"remote": r.RemoteAddr,
				},
				Error: err,
			})
		})
	}
}

// bearerToken extracts the credential from an Authorization header. A
// header without the Bearer scheme is passed on whole so it fails as
// invalid rather than missing.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	scheme, token, _ := strings.Cut(header, " ")
	if strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return header
}
