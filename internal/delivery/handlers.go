package delivery

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/dustin/go-humanize"

	"github.com/Vovarama1992/transcriber/internal/models"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

const (
	// запас на заголовки multipart и текстовые поля
	multipartOverhead = 1 << 20
	maxFieldBytes     = 4 << 10

	defaultHistoryLimit = 20
	maxHistoryLimit     = 200

	defaultVADParameters = "threshold=0.5"
)

type TranscribeHandler struct {
	svc       ports.Transcriber
	history   ports.TranscriptHistory
	gate      ports.AccessGate
	maxUpload int64
	service   string
	log       *logger.ZapLogger
}

func NewTranscribeHandler(
	svc ports.Transcriber,
	history ports.TranscriptHistory,
	gate ports.AccessGate,
	maxUpload int64,
	service string,
	log *logger.ZapLogger,
) *TranscribeHandler {
	return &TranscribeHandler{
		svc:       svc,
		history:   history,
		gate:      gate,
		maxUpload: maxUpload,
		service:   service,
		log:       log,
	}
}

type transcribeResponse struct {
	Success             bool     `json:"success"`
	Text                string   `json:"text"`
	Language            string   `json:"language"`
	LanguageProbability float64  `json:"language_probability"`
	VADEnabled          bool     `json:"vad_enabled"`
	VADThreshold        *float64 `json:"vad_threshold"`
}

type detectResponse struct {
	Success             bool    `json:"success"`
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
}

// GET /
func (h *TranscribeHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": h.service + " is running",
	})
}

// GET /health
func (h *TranscribeHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"model_loaded":    h.svc.EngineReady(),
		"service":         h.service,
		"engine":          h.svc.EngineName(),
		"auth_required":   h.gate.Required(),
		"auth_configured": h.gate.Configured(),
		"vad_support":     true,
	})
}

// POST /transcribe
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	form, err := h.readForm(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	params := models.TranscribeParams{
		Language:      form.value("language", ""),
		Task:          form.value("task", string(models.TaskTranscribe)),
		VADFilter:     parseFormBool(form.value("vad_filter", "false")),
		VADParameters: form.value("vad_parameters", defaultVADParameters),
	}

	res, err := h.svc.Transcribe(r.Context(), form.upload(), params)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := transcribeResponse{
		Success:             true,
		Text:                res.FullText,
		Language:            res.DetectedLanguage,
		LanguageProbability: res.LanguageConfidence,
		VADEnabled:          res.VADRequested,
	}
	if res.VADRequested {
		th := res.VADThreshold
		resp.VADThreshold = &th
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /detect-language
func (h *TranscribeHandler) DetectLanguage(w http.ResponseWriter, r *http.Request) {
	form, err := h.readForm(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.svc.DetectLanguage(r.Context(), form.upload())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, detectResponse{
		Success:             true,
		Language:            res.DetectedLanguage,
		LanguageProbability: res.LanguageConfidence,
	})
}

// GET /history?limit=N
func (h *TranscribeHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.log.Log(logger.LogEntry{
			Level:   "error",
			Message: "history query failed",
			Error:   err,
		})
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load history"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"records": records,
	})
}

func (h *TranscribeHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := writeError(w, err)
	level := "info"
	if status >= http.StatusInternalServerError {
		level = "error"
	}
	h.log.Log(logger.LogEntry{
		Level:   level,
		Message: "request failed",
		Fields: map[string]any{
			"path":   r.URL.Path,
			"status": status,
		},
		Error: err,
	})
}

// uploadForm is a parsed multipart request. The file part is held in memory
// up to one byte past the limit; the ingest step decides about the size.
type uploadForm struct {
	fields   map[string]string
	filename string
	file     []byte
	hasFile  bool
}

func (f *uploadForm) value(key, def string) string {
	if v := strings.TrimSpace(f.fields[key]); v != "" {
		return v
	}
	return def
}

func (f *uploadForm) upload() models.Upload {
	up := models.Upload{Filename: f.filename, Source: "http"}
	if f.hasFile {
		up.Body = bytes.NewReader(f.file)
	}
	return up
}

// readForm streams the multipart body. Fields may come before or after the
// file part.
func (h *TranscribeHandler) readForm(w http.ResponseWriter, r *http.Request) (*uploadForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrNoInputProvided, err)
	}

	form := &uploadForm{fields: map[string]string{}}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, h.bodyError(err)
		}

		if err := h.readPart(form, part); err != nil {
			part.Close()
			return nil, err
		}
		part.Close()
	}

	if !form.hasFile {
		return nil, ports.ErrNoInputProvided
	}
	return form, nil
}

func (h *TranscribeHandler) readPart(form *uploadForm, part *multipart.Part) error {
	name := part.FormName()
	if name == "file" && !form.hasFile {
		data, err := io.ReadAll(io.LimitReader(part, h.maxUpload+1))
		if err != nil {
			return h.bodyError(err)
		}
		form.filename = part.FileName()
		form.file = data
		form.hasFile = true
		return nil
	}

	value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
	if err != nil {
		return h.bodyError(err)
	}
	if name != "" {
		form.fields[name] = string(value)
	}
	return nil
}

func (h *TranscribeHandler) bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w. Maximum size is %s", ports.ErrPayloadTooLarge, humanize.IBytes(uint64(h.maxUpload)))
	}
	return fmt.Errorf("%w: %v", ports.ErrNoInputProvided, err)
}

func parseFormBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "yes", "on":
		return true
	default:
		return false
	}
}
