// Package elevenlabs provides an STT provider backed by the ElevenLabs
// Scribe speech-to-text REST API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/phonoplay/pkg/provider/stt"
)

const (
	defaultBaseURL  = "https://api.elevenlabs.io"
	defaultModel    = "scribe_v1"
	defaultLanguage = "eng"
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Scribe model ID. Defaults to "scribe_v1".
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default ISO 639-3 language code. Defaults to "eng".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(url, "/")
	}
}

// WithTagAudioEvents toggles tagging of non-speech events such as laughter.
// Defaults to true.
func WithTagAudioEvents(enabled bool) Option {
	return func(p *Provider) {
		p.tagAudioEvents = enabled
	}
}

// Provider implements stt.Provider using ElevenLabs Scribe.
type Provider struct {
	apiKey         string
	baseURL        string
	model          string
	language       string
	tagAudioEvents bool
	httpClient     *http.Client
}

// New creates a Provider. apiKey must not be empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:         apiKey,
		baseURL:        defaultBaseURL,
		model:          defaultModel,
		language:       defaultLanguage,
		tagAudioEvents: true,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type scribeResponse struct {
	Text                string  `json:"text"`
	LanguageCode        string  `json:"language_code"`
	LanguageProbability float64 `json:"language_probability"`
	Words               []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Type  string  `json:"type"`
	} `json:"words"`
	Detail json.RawMessage `json:"detail"`
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio, opts stt.Options) (stt.Transcript, error) {
	if len(audio.Data) == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}
	up := audio.Uploadable()

	model := p.model
	if opts.Model != "" {
		model = opts.Model
	}
	language := p.language
	if opts.Language != "" {
		language = opts.Language
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"model_id", model},
		{"language_code", language},
		{"tag_audio_events", fmt.Sprint(p.tagAudioEvents)},
		{"timestamps_granularity", "word"},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return stt.Transcript{}, fmt.Errorf("elevenlabs: write %s field: %w", f[0], err)
		}
	}
	fw, err := mw.CreateFormFile("file", up.Filename)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("elevenlabs: create form file: %w", err)
	}
	if _, err := fw.Write(up.Data); err != nil {
		return stt.Transcript{}, fmt.Errorf("elevenlabs: write audio data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("elevenlabs: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/speech-to-text", &body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("elevenlabs: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("elevenlabs: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("elevenlabs: speech-to-text returned HTTP %d: %s", resp.StatusCode, truncate(data, 200))
	}
	return parseScribeResponse(data)
}

func parseScribeResponse(data []byte) (stt.Transcript, error) {
	var r scribeResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return stt.Transcript{}, fmt.Errorf("elevenlabs: parse speech-to-text response: %w", err)
	}
	t := stt.Transcript{
		Text:       strings.TrimSpace(r.Text),
		Language:   r.LanguageCode,
		Confidence: r.LanguageProbability,
	}
	for _, w := range r.Words {
		if w.Type != "" && w.Type != "word" {
			continue
		}
		t.Words = append(t.Words, stt.Word{Text: w.Text, Start: w.Start, End: w.End})
	}
	return t, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
