// Package narration speaks words aloud for the practice screen. It sits in
// front of a [tts.Provider], caching rendered clips per voice and text so the
// replay button does not pay for a second synthesis.
package narration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/phonoplay/internal/observe"
	"github.com/MrWong99/phonoplay/pkg/provider/tts"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = time.Hour
	defaultTimeout   = 30 * time.Second
)

// Option configures a [Narrator].
type Option func(*Narrator)

// WithVoice sets the voice used when a caller passes no voice ID.
func WithVoice(id string) Option {
	return func(n *Narrator) { n.voice = id }
}

// WithCache sets the cache capacity and entry lifetime. A size of zero
// disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(n *Narrator) {
		n.cacheSize = size
		n.cacheTTL = ttl
	}
}

// WithTimeout bounds a single provider call. The call outlives the caller
// that started it so that coalesced callers still receive the clip.
func WithTimeout(d time.Duration) Option {
	return func(n *Narrator) { n.timeout = d }
}

// WithMetrics records cache hits and misses on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(n *Narrator) { n.metrics = m }
}

// Narrator renders speech with caching. Concurrent requests for the same clip
// share one provider call. Safe for concurrent use.
type Narrator struct {
	provider  tts.Provider
	voice     string
	cacheSize int
	cacheTTL  time.Duration
	timeout   time.Duration
	metrics   *observe.Metrics

	cache  *expirable.LRU[string, tts.Audio]
	flight singleflight.Group
}

// New creates a [Narrator] over provider.
func New(provider tts.Provider, opts ...Option) *Narrator {
	n := &Narrator{
		provider:  provider,
		cacheSize: defaultCacheSize,
		cacheTTL:  defaultCacheTTL,
		timeout:   defaultTimeout,
	}
	for _, o := range opts {
		o(n)
	}
	if n.cacheSize > 0 {
		n.cache = expirable.NewLRU[string, tts.Audio](n.cacheSize, nil, n.cacheTTL)
	}
	return n
}

// DefaultVoice returns the voice used when none is requested.
func (n *Narrator) DefaultVoice() string { return n.voice }

// Speak returns audio for text in voiceID (empty means the default voice).
// It fails with [tts.ErrEmptyText] for blank text. Cancelling ctx returns
// early for this caller only; other callers waiting on the same clip keep
// waiting for it.
func (n *Narrator) Speak(ctx context.Context, text, voiceID string) (tts.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Audio{}, tts.ErrEmptyText
	}
	if voiceID == "" {
		voiceID = n.voice
	}
	key := voiceID + "|" + strings.ToLower(text)

	if n.cache != nil {
		if a, ok := n.cache.Get(key); ok {
			n.record(ctx, true)
			return a, nil
		}
	}
	n.record(ctx, false)

	ch := n.flight.DoChan(key, func() (any, error) {
		sctx := context.WithoutCancel(ctx)
		if n.timeout > 0 {
			var cancel context.CancelFunc
			sctx, cancel = context.WithTimeout(sctx, n.timeout)
			defer cancel()
		}
		a, err := n.provider.Synthesize(sctx, text, tts.VoiceProfile{ID: voiceID})
		if err != nil {
			return tts.Audio{}, err
		}
		if n.cache != nil {
			n.cache.Add(key, a)
		}
		return a, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return tts.Audio{}, fmt.Errorf("narration: synthesize %q: %w", text, ctx.Err())
	}
	if res.Err != nil {
		return tts.Audio{}, fmt.Errorf("narration: synthesize %q: %w", text, res.Err)
	}
	if res.Shared {
		slog.Debug("narration request coalesced", "text", text)
	}
	return res.Val.(tts.Audio), nil
}

// Voices lists the voices the provider offers.
func (n *Narrator) Voices(ctx context.Context) ([]tts.VoiceProfile, error) {
	voices, err := n.provider.ListVoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("narration: list voices: %w", err)
	}
	return voices, nil
}

// Purge empties the cache.
func (n *Narrator) Purge() {
	if n.cache != nil {
		n.cache.Purge()
	}
}

func (n *Narrator) record(ctx context.Context, hit bool) {
	if n.metrics != nil {
		n.metrics.RecordNarrationCache(ctx, hit)
	}
}
