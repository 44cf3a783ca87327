package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/phonoplay/pkg/provider/llm"
	"github.com/MrWong99/phonoplay/pkg/provider/stt"
	"github.com/MrWong99/phonoplay/pkg/provider/tts"
)

// ── Provider instrumentation ─────────────────────────────────────────────────
//
// The wrappers below record latency, request and error counters around a
// provider. Wrap each concrete backend before it joins a fallback group so
// the provider attribute names the backend that actually answered.

func (m *Metrics) observeCall(ctx context.Context, h metric.Float64Histogram, provider, kind string, start time.Time, err error) {
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(Attr("provider", provider)))
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, provider, kind)
	}
	m.RecordProviderRequest(ctx, provider, kind, status)
}

type instrumentedSTT struct {
	next stt.Provider
	name string
	m    *Metrics
}

// InstrumentSTT wraps p so every transcription is measured under name.
func InstrumentSTT(p stt.Provider, name string, m *Metrics) stt.Provider {
	return &instrumentedSTT{next: p, name: name, m: m}
}

func (i *instrumentedSTT) Transcribe(ctx context.Context, audio stt.Audio, opts stt.Options) (stt.Transcript, error) {
	start := time.Now()
	tr, err := i.next.Transcribe(ctx, audio, opts)
	i.m.observeCall(ctx, i.m.STTDuration, i.name, "stt", start, err)
	return tr, err
}

type instrumentedTTS struct {
	next tts.Provider
	name string
	m    *Metrics
}

// InstrumentTTS wraps p so every synthesis is measured under name.
// ListVoices is counted but not timed.
func InstrumentTTS(p tts.Provider, name string, m *Metrics) tts.Provider {
	return &instrumentedTTS{next: p, name: name, m: m}
}

func (i *instrumentedTTS) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error) {
	start := time.Now()
	a, err := i.next.Synthesize(ctx, text, voice)
	i.m.observeCall(ctx, i.m.TTSDuration, i.name, "tts", start, err)
	return a, err
}

func (i *instrumentedTTS) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	voices, err := i.next.ListVoices(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		i.m.RecordProviderError(ctx, i.name, "tts_voices")
	}
	i.m.RecordProviderRequest(ctx, i.name, "tts_voices", status)
	return voices, err
}

type instrumentedLLM struct {
	next llm.Provider
	name string
	m    *Metrics
}

// InstrumentLLM wraps p so every completion is measured under name.
func InstrumentLLM(p llm.Provider, name string, m *Metrics) llm.Provider {
	return &instrumentedLLM{next: p, name: name, m: m}
}

func (i *instrumentedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := i.next.Complete(ctx, req)
	i.m.observeCall(ctx, i.m.LLMDuration, i.name, "llm", start, err)
	return resp, err
}
