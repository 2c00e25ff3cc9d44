package domain

import (
	"errors"

	"github.com/Vovarama1992/transcriber/internal/ports"
)

type ErrorKind string

const (
	KindNone                    ErrorKind = ""
	KindMissingCredential       ErrorKind = "MissingCredential"
	KindInvalidCredential       ErrorKind = "InvalidCredential"
	KindNoInputProvided         ErrorKind = "NoInputProvided"
	KindPayloadTooLarge         ErrorKind = "PayloadTooLarge"
	KindEngineUnavailable       ErrorKind = "EngineUnavailable"
	KindEngineDecodeError       ErrorKind = "EngineDecodeError"
	KindMalformedControlMessage ErrorKind = "MalformedControlMessage"
)

// KindOf maps any error to its taxonomy kind. Unknown errors count as
// decode failures since only the engine path produces them.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ports.ErrMissingCredential):
		return KindMissingCredential
	case errors.Is(err, ports.ErrInvalidCredential):
		return KindInvalidCredential
	case errors.Is(err, ports.ErrNoInputProvided):
		return KindNoInputProvided
	case errors.Is(err, ports.ErrPayloadTooLarge):
		return KindPayloadTooLarge
	case errors.Is(err, ports.ErrEngineUnavailable):
		return KindEngineUnavailable
	case errors.Is(err, ports.ErrMalformedControlMessage):
		return KindMalformedControlMessage
	default:
		return KindEngineDecodeError
	}
}

// ErrorType returns the engine error class for decode failures, "" otherwise.
func ErrorType(err error) string {
	var de *ports.DecodeError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}
