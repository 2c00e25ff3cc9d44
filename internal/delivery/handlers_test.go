package delivery

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Vovarama1992/transcriber/internal/delivery/ws"
	"github.com/Vovarama1992/transcriber/internal/domain"
	"github.com/Vovarama1992/transcriber/internal/domain/stations"
	"github.com/Vovarama1992/transcriber/internal/infra"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

const testMaxUpload = 1024

// countingStore wraps the real temp store and counts writes.
type countingStore struct {
	ports.ArtifactStore
	mu     sync.Mutex
	writes int
}

func (s *countingStore) Write(filename string, r io.Reader) (string, error) {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return s.ArtifactStore.Write(filename, r)
}

type testEnv struct {
	srv     *httptest.Server
	handler http.Handler
	dir     string
	store   *countingStore
}

func stubFactory() (ports.Engine, error) { return infra.NewStubEngine(), nil }

func newTestEnv(t *testing.T, requireAuth bool, token string, factory func() (ports.Engine, error)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	tmp, err := infra.NewTempArtifactStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	store := &countingStore{ArtifactStore: tmp}

	handle := domain.NewEngineHandle("stub", factory, 0, nil)
	coord := domain.NewCoordinator(
		handle,
		stations.NewS1Ingest(store, testMaxUpload, nil, nil),
		stations.NewS2VAD(stations.DefaultVADThreshold, nil),
		stations.NewS4Decode(handle, nil, nil),
		nil, nil, nil,
	)

	zl := logger.NewZapLogger(zap.NewNop().Sugar())
	gate := domain.NewAccessGate(requireAuth, token)
	h := NewTranscribeHandler(coord, coord, gate, testMaxUpload, "Transcriber Service", zl)
	stream := ws.NewHandler(ws.NewHub(zl, nil), coord, ws.Options{}, zl, nil)
	router := NewRouter(h, gate, zl, RouterOptions{Stream: stream})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, handler: router, dir: dir, store: store}
}

func (e *testEnv) leftovers(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

// multipartBody puts the file first so fields after it are exercised too.
func multipartBody(t *testing.T, filename string, audio []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	if audio != nil {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(audio)
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()
	return buf, mw.FormDataContentType()
}

func (e *testEnv) post(t *testing.T, path, token string, body io.Reader, contentType string) (int, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, e.srv.URL+path, body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(t, req)
}

func (e *testEnv) get(t *testing.T, path, authHeader string) (int, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	return do(t, req)
}

func do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s: %v", req.URL.Path, err)
	}
	return resp.StatusCode, out
}

func TestAuthScenarios(t *testing.T) {
	env := newTestEnv(t, true, "secret", stubFactory)

	code, body := env.get(t, "/health", "")
	if code != http.StatusUnauthorized || body["error_kind"] != "MissingCredential" || body["success"] != false {
		t.Errorf("no header: %d %v", code, body)
	}

	code, body = env.get(t, "/health", "Bearer wrong")
	if code != http.StatusForbidden || body["error_kind"] != "InvalidCredential" || body["error"] != "Invalid API token" {
		t.Errorf("wrong token: %d %v", code, body)
	}

	code, body = env.get(t, "/health", "Bearer secret")
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("valid token: %d %v", code, body)
	}

	r, ct := multipartBody(t, "a.wav", []byte("RIFFaudio"), nil)
	code, body = env.post(t, "/transcribe", "secret", r, ct)
	if code != http.StatusOK || body["success"] != true {
		t.Errorf("valid token transcribe: %d %v", code, body)
	}

	r, ct = multipartBody(t, "a.wav", []byte("RIFFaudio"), nil)
	code, _ = env.post(t, "/transcribe", "", r, ct)
	if code != http.StatusUnauthorized {
		t.Errorf("transcribe without token: %d", code)
	}
	if env.store.writes != 1 {
		t.Errorf("rejected requests must not allocate artifacts, writes = %d", env.store.writes)
	}
}

func TestStreamConnectIsGated(t *testing.T) {
	env := newTestEnv(t, true, "secret", stubFactory)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hdr := http.Header{}
			if tt.header != "" {
				hdr.Set("Authorization", tt.header)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, hdr)
			if err == nil {
				conn.Close()
				t.Fatal("expected handshake to fail")
			}
			if resp == nil || resp.StatusCode != tt.status {
				t.Fatalf("resp = %v, err = %v", resp, err)
			}
		})
	}

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer secret")
	conn, _, err := websocket.DefaultDialer.Dial(url, hdr)
	if err != nil {
		t.Fatalf("valid token: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg["type"] != "connection" || msg["status"] != "connected" {
		t.Errorf("msg = %v", msg)
	}
	if env.store.writes != 0 {
		t.Errorf("writes = %d", env.store.writes)
	}
}

func TestRecovererWritesEnvelope(t *testing.T) {
	mw := NewMiddleware(logger.NewZapLogger(zap.NewNop().Sugar()), nil)
	h := mw.Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("form parser exploded")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/transcribe", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("not json: %q", rec.Body.String())
	}
	if body["success"] != false || body["error_kind"] != "EngineDecodeError" || body["error_type"] != "panic" {
		t.Errorf("body = %v", body)
	}
}

func TestPublicRoutesSkipGate(t *testing.T) {
	env := newTestEnv(t, true, "secret", stubFactory)

	code, body := env.get(t, "/", "")
	if code != http.StatusOK || body["message"] != "Transcriber Service is running" {
		t.Errorf("root: %d %v", code, body)
	}

	resp, err := http.Get(env.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics: %d", resp.StatusCode)
	}
}

func TestTranscribeSuccess(t *testing.T) {
	env := newTestEnv(t, false, "", stubFactory)

	r, ct := multipartBody(t, "a.wav", []byte("0123456789"), map[string]string{"language": "ar"})
	code, body := env.post(t, "/transcribe", "", r, ct)
	if code != http.StatusOK {
		t.Fatalf("code = %d %v", code, body)
	}
	if body["text"] != "[stub] 10 bytes" || body["language"] != "ar" {
		t.Errorf("body = %v", body)
	}
	if body["vad_enabled"] != false || body["vad_threshold"] != nil {
		t.Errorf("vad fields = %v / %v", body["vad_enabled"], body["vad_threshold"])
	}
	if n := env.leftovers(t); n != 0 {
		t.Errorf("%d artifacts left", n)
	}
}

func TestTranscribeVADParameters(t *testing.T) {
	env := newTestEnv(t, false, "", stubFactory)

	r, ct := multipartBody(t, "a.wav", []byte("audio"), map[string]string{
		"vad_filter":     "true",
		"vad_parameters": "threshold=0.9,badtoken",
	})
	code, body := env.post(t, "/transcribe", "", r, ct)
	if code != http.StatusOK || body["vad_enabled"] != true || body["vad_threshold"] != 0.9 {
		t.Fatalf("%d %v", code, body)
	}
}

func TestTranscribeVADFallbackIsSilent(t *testing.T) {
	env := newTestEnv(t, false, "", stubFactory)

	// стаб отвергает порог вне [0,1], срабатывает повтор без VAD
	r, ct := multipartBody(t, "a.wav", []byte("audio"), map[string]string{
		"vad_filter":     "true",
		"vad_parameters": "threshold=1.5",
	})
	code, body := env.post(t, "/transcribe", "", r, ct)
	if code != http.StatusOK || body["success"] != true {
		t.Fatalf("%d %v", code, body)
	}
	if body["vad_enabled"] != true || body["error"] != nil {
		t.Errorf("body = %v", body)
	}
	if n := env.leftovers(t); n != 0 {
		t.Errorf("%d artifacts left", n)
	}
}

func TestTranscribeOversizeCreatesNoArtifact(t *testing.T) {
	env := newTestEnv(t, false, "", stubFactory)

	r, ct := multipartBody(t, "big.wav", bytes.Repeat([]byte("a"), testMaxUpload+1), nil)
	code, body := env.post(t, "/transcribe", "", r, ct)
	if code != http.StatusBadRequest || body["error_kind"] != "PayloadTooLarge" {
		t.Fatalf("%d %v", code, body)
	}
	if !strings.HasPrefix(body["error"].(string), "File too large") {
		t.Errorf("error = %v", body["error"])
	}
	if env.store.writes != 0 {
		t.Fatalf("writes = %d, want 0", env.store.writes)
	}
}

func TestTranscribeOversizeBeyondBodyLimit(t *testing.T) {
	env := newTestEnv(t, false, "", stubFactory)

	// в обход сети: сервер закрывает соединение, не дочитав тело
	r, ct := multipartBody(t, "big.wav", []byte("a"), map[string]string{
		"language": strings.Repeat("x", 2<<20),
	})
	req := httptest.NewRequest(http.MethodPost, "/transcribe", r)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusBadRequest || body["error_kind"] != "PayloadTooLarge" {
		t.Fatalf("%d %v", rec.Code, body)
	}
	if env.store.writes != 0 {
		t.Fatalf("writes = %d", env.store.writes)
	}
}

func TestTranscribeNoInput(t *testing.T) {
	env := newTestEnv(t, false, "", stubFactory)

	tests := []struct {
		name     string
		filename string
		audio    []byte
	}{
		{"no file part", "", nil},
		{"empty file", "a.wav", []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ct := multipartBody(t, tt.filename, tt.audio, map[string]string{"task": "transcribe"})
			code, body := env.post(t, "/transcribe", "", r, ct)
			if code != http.StatusBadRequest || body["error_kind"] != "NoInputProvided" {
				t.Fatalf("%d %v", code, body)
			}
		})
	}

	code, body := env.post(t, "/transcribe", "", strings.NewReader(`{"file":"x"}`), "application/json")
	if code != http.StatusBadRequest || body["error_kind"] != "NoInputProvided" {
		t.Fatalf("json body: %d %v", code, body)
	}
}

func TestTranscribeEngineUnavailable(t *testing.T) {
	env := newTestEnv(t, false, "", func() (ports.Engine, error) {
		return nil, errors.New("weights not found")
	})

	r, ct := multipartBody(t, "a.wav", []byte("small"), nil)
	code, body := env.post(t, "/transcribe", "", r, ct)
	if code != http.StatusInternalServerError {
		t.Fatalf("code = %d", code)
	}
	if body["success"] != false || body["error"] != "Model not loaded" || body["error_kind"] != "EngineUnavailable" {
		t.Errorf("body = %v", body)
	}
	if n := env.leftovers(t); n != 0 {
		t.Errorf("%d artifacts left", n)
	}

	_, health := env.get(t, "/health", "")
	if health["model_loaded"] != false {
		t.Errorf("health = %v", health)
	}
}

func TestTranscribeDecodeErrorEnvelope(t *testing.T) {
	env := newTestEnv(t, false, "", stubFactory)

	r, ct := multipartBody(t, "a.wav", []byte("audio"), map[string]string{"task": "summarize"})
	code, body := env.post(t, "/transcribe", "", r, ct)
	if code != http.StatusInternalServerError || body["error_kind"] != "EngineDecodeError" {
		t.Fatalf("%d %v", code, body)
	}
	if body["error_type"] == "" || body["error_type"] == nil {
		t.Errorf("error_type missing: %v", body)
	}
	if n := env.leftovers(t); n != 0 {
		t.Errorf("%d artifacts left", n)
	}
}

func TestDetectLanguage(t *testing.T) {
	env := newTestEnv(t, false, "", stubFactory)

	r, ct := multipartBody(t, "a.wav", []byte("audio"), nil)
	code, body := env.post(t, "/detect-language", "", r, ct)
	if code != http.StatusOK || body["language"] != "en" || body["language_probability"] != 0.99 {
		t.Fatalf("%d %v", code, body)
	}
	if _, ok := body["text"]; ok {
		t.Error("detect-language must not return text")
	}
}

func TestHealthIsIdempotent(t *testing.T) {
	env := newTestEnv(t, true, "secret", stubFactory)

	_, first := env.get(t, "/health", "Bearer secret")
	for i := 0; i < 3; i++ {
		_, again := env.get(t, "/health", "Bearer secret")
		if again["model_loaded"] != first["model_loaded"] || again["auth_required"] != first["auth_required"] {
			t.Fatalf("health changed: %v vs %v", again, first)
		}
	}
	if first["auth_required"] != true || first["auth_configured"] != true || first["vad_support"] != true {
		t.Errorf("health = %v", first)
	}
}

func TestHistoryWithoutStorage(t *testing.T) {
	env := newTestEnv(t, false, "", stubFactory)

	code, body := env.get(t, "/history?limit=5", "")
	if code != http.StatusOK {
		t.Fatalf("%d %v", code, body)
	}
	if recs, ok := body["records"].([]any); !ok || len(recs) != 0 {
		t.Errorf("records = %v", body["records"])
	}

	code, _ = env.get(t, "/history?limit=abc", "")
	if code != http.StatusBadRequest {
		t.Errorf("bad limit: %d", code)
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"":               "",
		"Bearer secret":  "secret",
		"bearer  secret": "secret",
		"Bearer ":        "",
		"Basic abc":      "Basic abc",
		"secret":         "secret",
	}
	for in, want := range tests {
		if got := bearerToken(in); got != want {
			t.Errorf("bearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}
