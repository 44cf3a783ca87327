// Package openai provides an STT provider backed by the OpenAI audio
// transcription endpoint (whisper-1 and the gpt-4o transcribe models).
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/phonoplay/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

type config struct {
	baseURL    string
	model      string
	language   string
	prompt     string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel sets the transcription model. Defaults to "whisper-1".
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithLanguage sets the default ISO 639-1 language hint, e.g. "en".
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithPrompt sets a prompt that biases recognition, e.g. towards short
// single words.
func WithPrompt(prompt string) Option {
	return func(c *config) {
		c.prompt = prompt
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the SDK retries failed requests. Default: 2.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// Provider implements stt.Provider using the OpenAI SDK.
type Provider struct {
	client oai.Client
	cfg    config
}

// New constructs a Provider. apiKey must not be empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	cfg := config{model: string(oai.AudioModelWhisper1), maxRetries: 2}
	for _, o := range opts {
		o(&cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Provider{client: oai.NewClient(reqOpts...), cfg: cfg}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio, opts stt.Options) (stt.Transcript, error) {
	if len(audio.Data) == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}
	up := audio.Uploadable()

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(up.Data), up.Filename, contentType(up.MIMEType)),
		Model:          oai.AudioModel(p.cfg.model),
		ResponseFormat: oai.AudioResponseFormatJSON,
	}
	if opts.Model != "" {
		params.Model = oai.AudioModel(opts.Model)
	}
	language := p.cfg.language
	if opts.Language != "" {
		language = isoLanguage(opts.Language)
	}
	if language != "" {
		params.Language = param.NewOpt(language)
	}
	if p.cfg.prompt != "" {
		params.Prompt = param.NewOpt(p.cfg.prompt)
	}

	res, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: transcription: %w", err)
	}
	return stt.Transcript{Text: strings.TrimSpace(res.Text), Language: language}, nil
}

func contentType(mimeType string) string {
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}

// isoLanguage maps three-letter codes to the ISO 639-1 codes the API expects.
func isoLanguage(code string) string {
	switch strings.ToLower(code) {
	case "eng":
		return "en"
	case "deu", "ger":
		return "de"
	case "fra", "fre":
		return "fr"
	case "spa":
		return "es"
	default:
		return code
	}
}
