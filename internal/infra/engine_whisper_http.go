package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Vovarama1992/transcriber/internal/models"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

const maxWhisperResponse = 4 << 20

// WhisperHTTPEngine talks to a faster-whisper style HTTP server that
// accepts the audio as multipart and answers with JSON segments.
type WhisperHTTPEngine struct {
	endpoint string
	apiKey   string
	client   *http.Client
	log      *zap.Logger
}

// WhisperHTTPError is a non-2xx answer from the whisper server.
type WhisperHTTPError struct {
	StatusCode int
	Body       string
}

func (e *WhisperHTTPError) Error() string {
	return fmt.Sprintf("whisper http %d: %s", e.StatusCode, e.Body)
}

func NewWhisperHTTPEngine(endpoint, apiKey string, timeout time.Duration, log *zap.Logger) (*WhisperHTTPEngine, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("whisper-http: endpoint not set")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WhisperHTTPEngine{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		log:      log.Named("whisper-http"),
	}, nil
}

func (e *WhisperHTTPEngine) Name() string { return "whisper-http" }

type whisperSegment struct {
	Text  string   `json:"text"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
}

type whisperResponse struct {
	Success             *bool            `json:"success"`
	Error               string           `json:"error"`
	Text                string           `json:"text"`
	Language            string           `json:"language"`
	LanguageProbability float64          `json:"language_probability"`
	Segments            []whisperSegment `json:"segments"`
}

func (e *WhisperHTTPEngine) Decode(ctx context.Context, req models.InferenceRequest) (*ports.EngineOutput, error) {
	body, contentType, err := buildWhisperForm(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxWhisperResponse))
	if err != nil {
		return nil, fmt.Errorf("whisper read: %w", err)
	}

	e.log.Debug("whisper response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
		zap.Bool("vad", req.VADEnabled),
	)

	if resp.StatusCode != http.StatusOK {
		herr := &WhisperHTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		// сервер отверг параметры VAD: пусть решает фолбэк
		if req.VADEnabled && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity) {
			return nil, fmt.Errorf("%w: %w", ports.ErrUnsupportedParameters, herr)
		}
		return nil, herr
	}

	var parsed whisperResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("whisper decode response: %w", err)
	}
	if parsed.Success != nil && !*parsed.Success {
		return nil, fmt.Errorf("whisper: %s", parsed.Error)
	}

	out := &ports.EngineOutput{
		Language:            parsed.Language,
		LanguageProbability: parsed.LanguageProbability,
	}
	for _, s := range parsed.Segments {
		out.Segments = append(out.Segments, models.TranscriptSegment{
			Text:  strings.TrimSpace(s.Text),
			Start: s.Start,
			End:   s.End,
		})
	}
	if len(out.Segments) == 0 && strings.TrimSpace(parsed.Text) != "" {
		out.Segments = []models.TranscriptSegment{{Text: strings.TrimSpace(parsed.Text)}}
	}
	return out, nil
}

func buildWhisperForm(req models.InferenceRequest) (io.Reader, string, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	part, err := mw.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy artifact: %w", err)
	}

	fields := map[string]string{
		"task":       string(req.Task),
		"vad_filter": strconv.FormatBool(req.VADEnabled),
	}
	if req.LanguageHint != "" {
		fields["language"] = req.LanguageHint
	}
	if req.VADEnabled {
		fields["vad_parameters"] = "threshold=" + strconv.FormatFloat(req.VADThreshold, 'g', -1, 64)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}

func (e *WhisperHTTPEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
