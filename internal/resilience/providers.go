package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/phonoplay/pkg/provider/llm"
	"github.com/MrWong99/phonoplay/pkg/provider/stt"
	"github.com/MrWong99/phonoplay/pkg/provider/tts"
)

// ProviderPermanent extends [IsPermanent] with the request-validation errors of
// the provider packages: another backend would reject the same input.
func ProviderPermanent(err error) bool {
	return IsPermanent(err) ||
		errors.Is(err, stt.ErrEmptyAudio) ||
		errors.Is(err, tts.ErrEmptyText)
}

func withProviderDefaults(cfg FallbackConfig) FallbackConfig {
	if cfg.Permanent == nil {
		cfg.Permanent = ProviderPermanent
	}
	return cfg
}

// ── STT ──────────────────────────────────────────────────────────────────────

// STTFallback implements [stt.Provider] with failover across several
// speech-to-text backends.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, withProviderDefaults(cfg))}
}

// AddFallback registers an additional backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) { f.group.AddFallback(name, p) }

// Status reports the breaker state of every backend.
func (f *STTFallback) Status() []EntryStatus { return f.group.Status() }

// Healthy reports whether any backend accepts calls.
func (f *STTFallback) Healthy() bool { return f.group.Healthy() }

// Transcribe sends audio to the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, audio stt.Audio, opts stt.Options) (stt.Transcript, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, audio, opts)
	})
}

// ── TTS ──────────────────────────────────────────────────────────────────────

// TTSFallback implements [tts.Provider] with failover across several
// text-to-speech backends.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, withProviderDefaults(cfg))}
}

// AddFallback registers an additional backend.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) { f.group.AddFallback(name, p) }

// Status reports the breaker state of every backend.
func (f *TTSFallback) Status() []EntryStatus { return f.group.Status() }

// Healthy reports whether any backend accepts calls.
func (f *TTSFallback) Healthy() bool { return f.group.Healthy() }

// Synthesize renders text on the first healthy backend. Voice IDs are
// provider specific, so a fallback backend receives the voice with its ID
// cleared and uses its own default.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error) {
	first := true
	return ExecuteWithResult(f.group, func(p tts.Provider) (tts.Audio, error) {
		v := voice
		if !first {
			v.ID = ""
		}
		first = false
		return p.Synthesize(ctx, text, v)
	})
}

// ListVoices lists the voices of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// ── LLM ──────────────────────────────────────────────────────────────────────

// LLMFallback implements [llm.Provider] with failover across several language
// model backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, withProviderDefaults(cfg))}
}

// AddFallback registers an additional backend.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.group.AddFallback(name, p) }

// Status reports the breaker state of every backend.
func (f *LLMFallback) Status() []EntryStatus { return f.group.Status() }

// Healthy reports whether any backend accepts calls.
func (f *LLMFallback) Healthy() bool { return f.group.Healthy() }

// Complete runs the completion on the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
