package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/Vovarama1992/transcriber/internal/domain"
	"github.com/Vovarama1992/transcriber/internal/metrics"
	"github.com/Vovarama1992/transcriber/internal/models"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

const maxControlBytes = 64 << 10

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Options struct {
	// IdleTimeout closes a session that sends nothing for this long; 0 disables it.
	IdleTimeout time.Duration
}

// Handler upgrades the request and runs the session until the transport
// goes away. Frames of one session are handled strictly one at a time.
type Handler struct {
	hub     *Hub
	svc     ports.Transcriber
	opts    Options
	log     *logger.ZapLogger
	metrics *metrics.Metrics
}

func NewHandler(hub *Hub, svc ports.Transcriber, opts Options, log *logger.ZapLogger, m *metrics.Metrics) *Handler {
	return &Handler{hub: hub, svc: svc, opts: opts, log: log, metrics: m}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		h.log.Log(logger.LogEntry{Level: "info", Message: "[WS] upgrade failed", Error: err})
		return
	}

	sess := newSession(conn)
	if !h.hub.Register(sess) {
		_ = sess.writeJSON(connectionMessage{
			Type:    TypeConnection,
			Status:  StatusClosing,
			Message: "Server shutting down",
		})
		sess.close(websocket.CloseGoingAway, "server shutdown")
		return
	}
	defer func() {
		h.hub.Unregister(sess.ID)
		sess.close(websocket.CloseNormalClosure, "")
	}()

	sess.setState(StateOpen)
	if err := sess.writeJSON(connectionMessage{
		Type:      TypeConnection,
		Status:    StatusConnected,
		Message:   "Connected to transcription stream",
		SessionID: sess.ID,
	}); err != nil {
		return
	}

	h.readLoop(context.WithoutCancel(r.Context()), sess)
}

func (h *Handler) readLoop(ctx context.Context, sess *Session) {
	for {
		if h.opts.IdleTimeout > 0 {
			_ = sess.conn.SetReadDeadline(time.Now().Add(h.opts.IdleTimeout))
		}

		mt, rd, err := sess.conn.NextReader()
		if err != nil {
			h.log.Log(logger.LogEntry{
				Level:   "info",
				Message: "[WS] disconnect",
				Fields: map[string]any{
					"session": sess.ID,
					"frames":  sess.frames,
					"idle":    time.Since(sess.LastActivity()).String(),
				},
				Error: err,
			})
			return
		}
		sess.touch()

		switch mt {
		case websocket.BinaryMessage:
			h.metrics.RecordStreamMessage("binary")
			err = h.handleAudio(ctx, sess, rd)
		case websocket.TextMessage:
			h.metrics.RecordStreamMessage("text")
			err = h.handleControl(sess, rd)
		}
		// остаток кадра (например, после отказа по размеру) выбрасываем
		_, _ = io.Copy(io.Discard, rd)

		if err != nil {
			// ответить уже некуда
			return
		}
	}
}

// handleAudio treats one binary frame as one decodable unit and answers it
// with exactly one transcription or error frame. Only a failed write ends
// the session.
func (h *Handler) handleAudio(ctx context.Context, sess *Session, rd io.Reader) error {
	sess.frames++
	up := models.Upload{
		Filename: fmt.Sprintf("frame-%d.wav", sess.frames),
		Body:     rd,
		Source:   "stream",
	}
	if sess.pcm != nil {
		pcm := *sess.pcm
		up.PCM = &pcm
	}

	res, err := h.svc.Transcribe(ctx, up, sess.params)
	if err != nil {
		return sess.writeJSON(errorMessage{
			Type:      TypeError,
			Message:   err.Error(),
			Success:   false,
			ErrorKind: string(domain.KindOf(err)),
		})
	}
	return sess.writeJSON(transcriptionMessage{
		Type:                TypeTranscription,
		Text:                res.FullText,
		Language:            res.DetectedLanguage,
		LanguageProbability: res.LanguageConfidence,
		Success:             true,
	})
}

// handleControl recognizes only init. Anything else is logged and ignored.
func (h *Handler) handleControl(sess *Session, rd io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(rd, maxControlBytes))
	if err != nil {
		h.ignore(sess, fmt.Errorf("%w: %v", ports.ErrMalformedControlMessage, err))
		return nil
	}
	if !gjson.ValidBytes(raw) {
		h.ignore(sess, fmt.Errorf("%w: not json", ports.ErrMalformedControlMessage))
		return nil
	}

	switch typ := gjson.GetBytes(raw, "type").String(); typ {
	case TypeInit:
		var msg initMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.ignore(sess, fmt.Errorf("%w: init: %v", ports.ErrMalformedControlMessage, err))
			return nil
		}
		sess.apply(msg)
		h.log.Log(logger.LogEntry{
			Level:   "info",
			Message: "[WS] session configured",
			Fields: map[string]any{
				"session":    sess.ID,
				"language":   sess.params.Language,
				"task":       sess.params.Task,
				"vad_filter": sess.params.VADFilter,
				"pcm":        sess.pcm != nil,
			},
		})
		return sess.writeJSON(connectionMessage{
			Type:    TypeConnection,
			Status:  StatusInitialized,
			Message: "Session configured",
		})
	default:
		h.ignore(sess, fmt.Errorf("%w: unknown type %q", ports.ErrMalformedControlMessage, typ))
		return nil
	}
}

func (h *Handler) ignore(sess *Session, err error) {
	h.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "[WS] control message ignored",
		Fields:  map[string]any{"session": sess.ID},
		Error:   err,
	})
}
