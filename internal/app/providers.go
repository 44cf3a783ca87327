package app

import (
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/phonoplay/internal/config"
	"github.com/MrWong99/phonoplay/internal/observe"
	"github.com/MrWong99/phonoplay/internal/resilience"
	"github.com/MrWong99/phonoplay/pkg/provider/llm"
	"github.com/MrWong99/phonoplay/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/phonoplay/pkg/provider/llm/openai"
	"github.com/MrWong99/phonoplay/pkg/provider/stt"
	elstt "github.com/MrWong99/phonoplay/pkg/provider/stt/elevenlabs"
	oaistt "github.com/MrWong99/phonoplay/pkg/provider/stt/openai"
	"github.com/MrWong99/phonoplay/pkg/provider/stt/whisper"
	"github.com/MrWong99/phonoplay/pkg/provider/tts"
	eltts "github.com/MrWong99/phonoplay/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/phonoplay/pkg/provider/tts/smallest"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// RegisterBuiltinProviders wires the provider factories that ship with
// phonoplay into reg.
func RegisterBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai talks to any OpenAI-compatible endpoint; OpenRouter is reached
	// through base_url.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := config.OptString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		if ref := config.OptString(entry.Options, "referer"); ref != "" {
			opts = append(opts, oaillm.WithHeader("HTTP-Referer", ref))
		}
		if title := config.OptString(entry.Options, "title"); title != "" {
			opts = append(opts, oaillm.WithHeader("X-Title", title))
		}
		if n := config.OptInt(entry.Options, "max_retries"); n > 0 {
			opts = append(opts, oaillm.WithMaxRetries(n))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "ollama", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("elevenlabs", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []elstt.Option
		if entry.Model != "" {
			opts = append(opts, elstt.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, elstt.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elstt.WithBaseURL(entry.BaseURL))
		}
		if tag, ok := config.OptBool(entry.Options, "tag_audio_events"); ok {
			opts = append(opts, elstt.WithTagAudioEvents(tag))
		}
		return elstt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		if prompt := config.OptString(entry.Options, "prompt"); prompt != "" {
			opts = append(opts, oaistt.WithPrompt(prompt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		return oaistt.New(entry.APIKey, opts...)
	})

	// whisper is a self-hosted whisper.cpp server; base_url is its address.
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []eltts.Option
		if entry.Model != "" {
			opts = append(opts, eltts.WithModel(entry.Model))
		}
		if outputFmt := config.OptString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, eltts.WithOutputFormat(outputFmt))
		}
		if voice := config.OptString(entry.Options, "voice_id"); voice != "" {
			opts = append(opts, eltts.WithDefaultVoice(voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, eltts.WithBaseURL(entry.BaseURL))
		}
		return eltts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("smallest", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []smallest.Option
		if entry.Model != "" {
			opts = append(opts, smallest.WithModel(entry.Model))
		}
		if rate := config.OptInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, smallest.WithSampleRate(rate))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, smallest.WithLanguage(lang))
		}
		if voice := config.OptString(entry.Options, "voice_id"); voice != "" {
			opts = append(opts, smallest.WithDefaultVoice(voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, smallest.WithBaseURL(entry.BaseURL))
		}
		return smallest.New(entry.APIKey, opts...)
	})

	for _, kind := range []string{"llm", "stt", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// BuildProviders instantiates the providers named in cfg. Every instance is
// instrumented with m; an entry with fallbacks becomes a failover group in
// front of the instrumented members.
func BuildProviders(cfg config.ProvidersConfig, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	ps := &Providers{}
	var err error

	ps.LLM, err = buildSlot(cfg.LLM, "llm", reg.CreateLLM,
		func(p llm.Provider, name string) llm.Provider { return observe.InstrumentLLM(p, name, m) },
		func(primary llm.Provider, name string, fbs []named[llm.Provider]) llm.Provider {
			g := resilience.NewLLMFallback(primary, name, resilience.FallbackConfig{})
			for _, fb := range fbs {
				g.AddFallback(fb.name, fb.value)
			}
			return g
		})
	if err != nil {
		return nil, err
	}

	ps.STT, err = buildSlot(cfg.STT, "stt", reg.CreateSTT,
		func(p stt.Provider, name string) stt.Provider { return observe.InstrumentSTT(p, name, m) },
		func(primary stt.Provider, name string, fbs []named[stt.Provider]) stt.Provider {
			g := resilience.NewSTTFallback(primary, name, resilience.FallbackConfig{})
			for _, fb := range fbs {
				g.AddFallback(fb.name, fb.value)
			}
			return g
		})
	if err != nil {
		return nil, err
	}

	ps.TTS, err = buildSlot(cfg.TTS, "tts", reg.CreateTTS,
		func(p tts.Provider, name string) tts.Provider { return observe.InstrumentTTS(p, name, m) },
		func(primary tts.Provider, name string, fbs []named[tts.Provider]) tts.Provider {
			g := resilience.NewTTSFallback(primary, name, resilience.FallbackConfig{})
			for _, fb := range fbs {
				g.AddFallback(fb.name, fb.value)
			}
			return g
		})
	if err != nil {
		return nil, err
	}

	return ps, nil
}

type named[P any] struct {
	name  string
	value P
}

// buildSlot creates the primary of one provider slot and its fallbacks. A
// name without a registered factory is skipped with a warning, matching how
// an unconfigured slot behaves.
func buildSlot[P any](
	entry config.ProviderEntry,
	kind string,
	create func(config.ProviderEntry) (P, error),
	instrument func(P, string) P,
	group func(P, string, []named[P]) P,
) (P, error) {
	var zero P
	if entry.Name == "" {
		return zero, nil
	}

	primary, ok, err := createOne(entry, kind, create)
	if err != nil || !ok {
		return zero, err
	}
	primary = instrument(primary, entry.Name)

	var fbs []named[P]
	for _, fbEntry := range entry.Fallbacks {
		fb, ok, err := createOne(fbEntry, kind, create)
		if err != nil {
			return zero, err
		}
		if ok {
			fbs = append(fbs, named[P]{name: fbEntry.Name, value: instrument(fb, fbEntry.Name)})
		}
	}
	if len(fbs) == 0 {
		return primary, nil
	}
	slog.Info("provider failover enabled", "kind", kind, "primary", entry.Name, "fallbacks", len(fbs))
	return group(primary, entry.Name, fbs), nil
}

func createOne[P any](entry config.ProviderEntry, kind string, create func(config.ProviderEntry) (P, error)) (P, bool, error) {
	p, err := create(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not registered, skipping", "kind", kind, "name", entry.Name)
		return p, false, nil
	}
	if err != nil {
		return p, false, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return p, true, nil
}
