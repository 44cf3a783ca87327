// Package tts defines the Provider interface for Text-to-Speech backends.
//
// phonoplay narrates single practice words, so providers synthesize a complete
// clip per request instead of streaming. The clip is either inline audio or a
// hosted URL, depending on what the vendor returns.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"encoding/base64"
	"errors"
)

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("tts: empty text")

// VoiceProfile describes a voice offered by a provider.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string `json:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name"`

	// Provider identifies which TTS provider this voice belongs to.
	Provider string `json:"provider"`

	// SpeedFactor adjusts speaking rate (0.5–2.0). Zero means provider default.
	SpeedFactor float64 `json:"speed_factor,omitempty"`

	// Metadata holds provider-specific voice attributes (gender, accent, ...).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Audio is a synthesized clip.
type Audio struct {
	// Data is the encoded audio. Empty when URL is set.
	Data []byte

	// MIMEType describes Data, e.g. "audio/mpeg".
	MIMEType string

	// URL is a hosted location of the clip, when the provider returns one.
	URL string
}

// Playable returns something a browser audio element can play directly:
// the hosted URL when present, otherwise a base64 data URL.
func (a Audio) Playable() string {
	if a.URL != "" {
		return a.URL
	}
	if len(a.Data) == 0 {
		return ""
	}
	mt := a.MIMEType
	if mt == "" {
		mt = "audio/mpeg"
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with voice. An empty voice ID selects the
	// provider's default voice.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (Audio, error)

	// ListVoices returns the voices available to the configured account.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
