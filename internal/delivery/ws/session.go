package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Vovarama1992/transcriber/internal/models"
)

const writeWait = 10 * time.Second

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Session is one stream connection. Decode settings are touched only by the
// connection's read loop; writes may come from the loop and from broadcasts.
type Session struct {
	ID string

	conn         *websocket.Conn
	writeMu      sync.Mutex
	state        atomic.Int32
	lastActivity atomic.Int64
	closeOnce    sync.Once

	frames int
	params models.TranscribeParams
	pcm    *models.PCMFormat
}

func newSession(conn *websocket.Conn) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		conn:   conn,
		params: models.TranscribeParams{Task: string(models.TaskTranscribe)},
	}
	s.touch()
	return s
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

func (s *Session) LastActivity() time.Time { return time.Unix(0, s.lastActivity.Load()) }

func (s *Session) touch() { s.lastActivity.Store(time.Now().UnixNano()) }

func (s *Session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.writeRaw(data)
}

func (s *Session) writeRaw(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// close sends a close frame when it can and drops the transport. Safe to
// call from the hub and from the read loop.
func (s *Session) close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
}

// apply merges an init message into the session settings.
func (s *Session) apply(msg initMessage) {
	if msg.Language != nil {
		s.params.Language = *msg.Language
	}
	if msg.Task != nil && *msg.Task != "" {
		s.params.Task = *msg.Task
	}
	if msg.VADFilter != nil {
		s.params.VADFilter = *msg.VADFilter
	}
	if msg.VADParameters != nil {
		s.params.VADParameters = *msg.VADParameters
	}
	if msg.Encoding != nil {
		if *msg.Encoding == EncodingPCM {
			s.pcm = &models.PCMFormat{Channels: 1}
		} else {
			s.pcm = nil
		}
	}
	if msg.SampleRate != nil && s.pcm != nil {
		s.pcm.SampleRate = *msg.SampleRate
	}
}
