package ports

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingCredential       = errors.New("API token required")
	ErrInvalidCredential       = errors.New("Invalid API token")
	ErrNoInputProvided         = errors.New("No file provided")
	ErrPayloadTooLarge         = errors.New("File too large")
	ErrEngineUnavailable       = errors.New("Model not loaded")
	ErrMalformedControlMessage = errors.New("malformed control message")

	// ErrUnsupportedParameters tags an engine rejection of the requested
	// VAD parameter combination. It is the only error that triggers the
	// plain-decode fallback.
	ErrUnsupportedParameters = errors.New("engine: unsupported parameter combination")
)

// DecodeError wraps a failure reported by the engine. Type keeps the
// engine-side error class for diagnostics.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "decode failed"
	}
	return e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NewDecodeError wraps err unless it already is a DecodeError.
func NewDecodeError(err error) *DecodeError {
	var de *DecodeError
	if errors.As(err, &de) {
		return de
	}
	return &DecodeError{Type: rootTypeName(err), Err: err}
}

func rootTypeName(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
