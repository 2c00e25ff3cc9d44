package domain

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/Vovarama1992/transcriber/internal/ports"
)

type accessGate struct {
	required bool
	token    string
	key      []byte
}

func NewAccessGate(required bool, token string) ports.AccessGate {
	return &accessGate{
		required: required,
		token:    token,
		key:      []byte("transcriber-access-gate"),
	}
}

func (g *accessGate) Check(credential string) error {
	if !g.required {
		return nil
	}
	if credential == "" {
		return ports.ErrMissingCredential
	}
	// сравниваем дайджесты одинаковой длины
	if !hmac.Equal(g.sign(credential), g.sign(g.token)) {
		return ports.ErrInvalidCredential
	}
	return nil
}

func (g *accessGate) Required() bool   { return g.required }
func (g *accessGate) Configured() bool { return g.token != "" }

func (g *accessGate) sign(msg string) []byte {
	h := hmac.New(sha256.New, g.key)
	h.Write([]byte(msg))
	return h.Sum(nil)
}
