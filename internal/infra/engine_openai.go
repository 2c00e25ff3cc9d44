package infra

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/Vovarama1992/transcriber/internal/models"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

// OpenAIEngine uses an OpenAI-compatible audio API. The API has no VAD
// knob, so VAD requests are rejected and served by the plain fallback.
type OpenAIEngine struct {
	client openai.Client
	model  string
	log    *zap.Logger
}

func NewOpenAIEngine(apiKey, baseURL, model string, log *zap.Logger) (*OpenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: no api key")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if model == "" {
		model = "whisper-1"
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIEngine{
		client: openai.NewClient(opts...),
		model:  model,
		log:    log.Named("openai"),
	}, nil
}

func (e *OpenAIEngine) Name() string { return "openai:" + e.model }

func (e *OpenAIEngine) Decode(ctx context.Context, req models.InferenceRequest) (*ports.EngineOutput, error) {
	if req.VADEnabled {
		return nil, fmt.Errorf("openai: vad_filter: %w", ports.ErrUnsupportedParameters)
	}

	f, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	switch req.Task {
	case models.TaskTranscribe, "":
		return e.transcribe(ctx, f, req.LanguageHint)
	case models.TaskTranslate:
		return e.translate(ctx, f)
	default:
		return nil, fmt.Errorf("openai: unsupported task %q", req.Task)
	}
}

func (e *OpenAIEngine) transcribe(ctx context.Context, f *os.File, language string) (*ports.EngineOutput, error) {
	params := openai.AudioTranscriptionNewParams{
		File:           f,
		Model:          openai.AudioModel(e.model),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	}
	if language != "" {
		params.Language = openai.String(language)
	}

	resp, err := e.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, err
	}

	// verbose_json несёт язык и сегменты, которых нет в типизированном ответе
	raw := resp.RawJSON()
	out := &ports.EngineOutput{
		Language: normalizeLanguage(gjson.Get(raw, "language").String()),
	}
	if language != "" && out.Language == "" {
		out.Language = language
	}
	gjson.Get(raw, "segments").ForEach(func(_, seg gjson.Result) bool {
		start := seg.Get("start").Float()
		end := seg.Get("end").Float()
		out.Segments = append(out.Segments, models.TranscriptSegment{
			Text:  strings.TrimSpace(seg.Get("text").String()),
			Start: &start,
			End:   &end,
		})
		return true
	})
	if len(out.Segments) == 0 && strings.TrimSpace(resp.Text) != "" {
		out.Segments = []models.TranscriptSegment{{Text: strings.TrimSpace(resp.Text)}}
	}
	return out, nil
}

func (e *OpenAIEngine) translate(ctx context.Context, f *os.File) (*ports.EngineOutput, error) {
	resp, err := e.client.Audio.Translations.New(ctx, openai.AudioTranslationNewParams{
		File:  f,
		Model: openai.AudioModel(e.model),
	})
	if err != nil {
		return nil, err
	}
	out := &ports.EngineOutput{Language: "en"}
	if text := strings.TrimSpace(resp.Text); text != "" {
		out.Segments = []models.TranscriptSegment{{Text: text}}
	}
	return out, nil
}

func (e *OpenAIEngine) Close() error { return nil }

var languageCodes = map[string]string{
	"english":    "en",
	"arabic":     "ar",
	"russian":    "ru",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"chinese":    "zh",
	"japanese":   "ja",
	"korean":     "ko",
	"turkish":    "tr",
	"hindi":      "hi",
	"ukrainian":  "uk",
}

// normalizeLanguage maps the API's language names ("english") to codes.
func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if code, ok := languageCodes[lang]; ok {
		return code
	}
	return lang
}
