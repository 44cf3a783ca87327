// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A practice attempt is short (a single word, a few seconds at most), so
// providers work in batch mode: the whole recording is uploaded once and a
// single [Transcript] comes back. Implementations must be safe for concurrent
// use.
package stt

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyAudio is returned when a recording carries no bytes.
var ErrEmptyAudio = errors.New("stt: empty audio")

// MIMEPCM marks raw 16-bit signed little-endian PCM audio.
const MIMEPCM = "audio/pcm"

// Audio is a finished recording.
type Audio struct {
	// Data holds the encoded audio, or raw PCM when MIMEType is [MIMEPCM].
	Data []byte

	// MIMEType is the container type reported by the recorder, e.g.
	// "audio/webm" or "audio/wav".
	MIMEType string

	// Filename is the original upload name, if any.
	Filename string

	// SampleRate and Channels describe raw PCM. They are ignored for encoded
	// containers.
	SampleRate int
	Channels   int
}

// IsPCM reports whether a holds raw PCM samples.
func (a Audio) IsPCM() bool {
	mt := strings.ToLower(a.MIMEType)
	return mt == MIMEPCM || strings.HasPrefix(mt, "audio/l16")
}

// Uploadable returns a copy of a in a container every provider accepts.
// Raw PCM is wrapped in a WAV header; encoded audio is returned unchanged.
func (a Audio) Uploadable() Audio {
	if !a.IsPCM() {
		if a.Filename == "" {
			a.Filename = "audio" + extension(a.MIMEType)
		}
		return a
	}
	rate, ch := a.SampleRate, a.Channels
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if ch <= 0 {
		ch = 1
	}
	return Audio{
		Data:       EncodeWAV(a.Data, rate, ch),
		MIMEType:   "audio/wav",
		Filename:   "audio.wav",
		SampleRate: rate,
		Channels:   ch,
	}
}

func extension(mimeType string) string {
	mt := strings.ToLower(mimeType)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "audio/wav", "audio/wave", "audio/x-wav":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/flac":
		return ".flac"
	default:
		return ".webm"
	}
}

// Options are per-request recognition hints.
type Options struct {
	// Language is the language code expected in the recording. Providers use
	// their own format (ElevenLabs "eng", Whisper "en"); empty lets the
	// provider auto-detect.
	Language string

	// Model overrides the provider's configured model.
	Model string
}

// Word is a single recognized token with timing, when the provider reports it.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start,omitempty"`
	End   float64 `json:"end,omitempty"`
}

// Transcript is the recognized text of a recording.
type Transcript struct {
	Text       string  `json:"text"`
	Language   string  `json:"language,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Words      []Word  `json:"words,omitempty"`
}

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// Transcribe uploads audio and returns the recognized text. It returns
	// [ErrEmptyAudio] for empty recordings and honours ctx cancellation.
	Transcribe(ctx context.Context, audio Audio, opts Options) (Transcript, error)
}
