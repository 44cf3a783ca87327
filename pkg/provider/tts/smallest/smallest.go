// Package smallest provides a TTS provider backed by the Smallest AI
// "Lightning" text-to-speech API.
package smallest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/phonoplay/pkg/provider/tts"
)

const (
	defaultBaseURL = "https://waves-api.smallest.ai"
	defaultModel   = "lightning-v2"

	// DefaultVoiceID is the voice used when a request names none.
	DefaultVoiceID = "en_us_0"
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithModel sets the Lightning model path segment. Defaults to "lightning-v2".
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithSampleRate sets the output sample rate in Hz. Defaults to 24000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithLanguage sets the synthesis language. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithDefaultVoice sets the voice used when a request names none.
func WithDefaultVoice(voiceID string) Option {
	return func(p *Provider) {
		p.defaultVoice = voiceID
	}
}

// Provider implements tts.Provider using Smallest AI.
type Provider struct {
	apiKey       string
	baseURL      string
	model        string
	sampleRate   int
	language     string
	defaultVoice string
	httpClient   *http.Client
}

type speechRequest struct {
	Text         string  `json:"text"`
	VoiceID      string  `json:"voice_id"`
	AddWAVHeader bool    `json:"add_wav_header"`
	SampleRate   int     `json:"sample_rate"`
	Speed        float64 `json:"speed"`
	Consistency  float64 `json:"consistency"`
	Similarity   float64 `json:"similarity"`
	Enhancement  int     `json:"enhancement"`
	Language     string  `json:"language"`
}

type speechResponse struct {
	AudioURL     string `json:"audio_url"`
	AudioContent string `json:"audioContent"`
}

// New creates a Provider. apiKey must not be empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("smallest: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		sampleRate:   24000,
		language:     "en",
		defaultVoice: DefaultVoiceID,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (p *Provider) buildRequest(text string, voice tts.VoiceProfile) speechRequest {
	voiceID := voice.ID
	if voiceID == "" {
		voiceID = p.defaultVoice
	}
	speed := voice.SpeedFactor
	if speed <= 0 {
		speed = 1
	}
	return speechRequest{
		Text:         text,
		VoiceID:      voiceID,
		AddWAVHeader: true,
		SampleRate:   p.sampleRate,
		Speed:        speed,
		Consistency:  0.5,
		Similarity:   0,
		Enhancement:  1,
		Language:     p.language,
	}
}

// Synthesize implements tts.Provider. The API answers either with raw audio
// or with a JSON document holding a hosted URL or base64 content; both are
// accepted.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Audio{}, tts.ErrEmptyText
	}
	payload, err := json.Marshal(p.buildRequest(text, voice))
	if err != nil {
		return tts.Audio{}, fmt.Errorf("smallest: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/%s/get_speech", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return tts.Audio{}, fmt.Errorf("smallest: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("smallest: synthesize HTTP: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("smallest: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return tts.Audio{}, fmt.Errorf("smallest: synthesize: unexpected status %d", resp.StatusCode)
	}
	return parseSpeech(resp.Header.Get("Content-Type"), data)
}

func parseSpeech(contentType string, data []byte) (tts.Audio, error) {
	if !strings.HasPrefix(contentType, "application/json") {
		if len(data) == 0 {
			return tts.Audio{}, errors.New("smallest: empty audio response")
		}
		mt := contentType
		if mt == "" || strings.HasPrefix(mt, "application/octet-stream") {
			mt = "audio/wav"
		}
		return tts.Audio{Data: data, MIMEType: mt}, nil
	}

	var sr speechResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return tts.Audio{}, fmt.Errorf("smallest: decode response: %w", err)
	}
	switch {
	case sr.AudioURL != "":
		return tts.Audio{URL: sr.AudioURL}, nil
	case sr.AudioContent != "":
		raw, err := base64.StdEncoding.DecodeString(sr.AudioContent)
		if err != nil {
			return tts.Audio{}, fmt.Errorf("smallest: decode audioContent: %w", err)
		}
		return tts.Audio{Data: raw, MIMEType: "audio/wav"}, nil
	default:
		return tts.Audio{}, errors.New("smallest: response has neither audio_url nor audioContent")
	}
}

type voicesResponse struct {
	Voices []struct {
		VoiceID     string         `json:"voiceId"`
		DisplayName string         `json:"displayName"`
		Tags        map[string]any `json:"tags"`
	} `json:"voices"`
}

// ListVoices returns the voices of the configured model.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	endpoint := fmt.Sprintf("%s/api/v1/%s/get_voices", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("smallest: list voices: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("smallest: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("smallest: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("smallest: list voices decode: %w", err)
	}
	out := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Tags))
		for k, val := range v.Tags {
			switch tv := val.(type) {
			case string:
				meta[k] = tv
			case []any:
				parts := make([]string, 0, len(tv))
				for _, e := range tv {
					if s, ok := e.(string); ok {
						parts = append(parts, s)
					}
				}
				meta[k] = strings.Join(parts, ",")
			}
		}
		out = append(out, tts.VoiceProfile{ID: v.VoiceID, Name: v.DisplayName, Provider: "smallest", Metadata: meta})
	}
	return out, nil
}
