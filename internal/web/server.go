// Package web exposes phonoplay over HTTP: the word and speech endpoints the
// practice screens call directly, the session API that drives the practice
// state machine, and two websocket channels per session (snapshot events and
// browser microphone capture).
package web

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/phonoplay/internal/catalog"
	"github.com/MrWong99/phonoplay/internal/health"
	"github.com/MrWong99/phonoplay/internal/imagestore"
	"github.com/MrWong99/phonoplay/internal/observe"
	"github.com/MrWong99/phonoplay/internal/phonics"
	"github.com/MrWong99/phonoplay/internal/session"
	"github.com/MrWong99/phonoplay/pkg/provider/stt"
	"github.com/MrWong99/phonoplay/pkg/provider/tts"
)

const (
	defaultMaxUploadBytes = 10 << 20
	defaultLanguage       = "eng"
	defaultMaxPhonemes    = session.DefaultMaxPhonemes
)

// Catalog is the word source used by the word endpoints.
// *catalog.Accessor satisfies it.
type Catalog interface {
	FetchCandidates(ctx context.Context, source string, q catalog.Query) ([]phonics.Word, error)
	Phonemes(ctx context.Context) []string
}

// Speaker renders text as speech. *narration.Narrator satisfies it.
type Speaker interface {
	Speak(ctx context.Context, text, voiceID string) (tts.Audio, error)
	Voices(ctx context.Context) ([]tts.VoiceProfile, error)
}

// Option configures a [Server].
type Option func(*Server)

// WithSpeaker enables /api/tts and /api/voices.
func WithSpeaker(s Speaker) Option {
	return func(srv *Server) { srv.speaker = s }
}

// WithTranscriber enables /api/transcribe.
func WithTranscriber(p stt.Provider) Option {
	return func(srv *Server) { srv.transcriber = p }
}

// WithLLMWords enables /api/llm-word-selection.
func WithLLMWords(src catalog.Source) Option {
	return func(srv *Server) { srv.llmWords = src }
}

// WithImages resolves word image URLs through s. A [*imagestore.Dir] is
// also served under its base URL.
func WithImages(s imagestore.Store) Option {
	return func(srv *Server) { srv.images = s }
}

// WithSelector sets the selector behind /api/words/next.
func WithSelector(sel *phonics.Selector) Option {
	return func(srv *Server) { srv.selector = sel }
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(srv *Server) { srv.health = h }
}

// WithMetrics instruments every route and mounts /metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(srv *Server) { srv.metrics = m }
}

// WithMetricsHandler replaces the default Prometheus handler on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(srv *Server) { srv.metricsHandler = h }
}

// WithLanguage sets the default transcription language. Default: "eng".
func WithLanguage(lang string) Option {
	return func(srv *Server) { srv.language = lang }
}

// WithMaxUploadBytes caps multipart audio uploads. Default: 10 MiB.
func WithMaxUploadBytes(n int64) Option {
	return func(srv *Server) { srv.maxUpload = n }
}

// WithMaxPhonemes caps phoneme selections on the session API. Default: 5.
func WithMaxPhonemes(n int) Option {
	return func(srv *Server) { srv.maxPhonemes = n }
}

// WithPerformanceWindow sets how many of the most recent outcomes sent to
// /api/words/next count toward the success rate. Default:
// [phonics.DefaultWindow].
func WithPerformanceWindow(n int) Option {
	return func(srv *Server) { srv.window = n }
}

// Server is the HTTP front end. Build it with [New] and serve [Server.Handler].
type Server struct {
	catalog  Catalog
	sessions *session.Manager

	speaker        Speaker
	transcriber    stt.Provider
	llmWords       catalog.Source
	images         imagestore.Store
	selector       *phonics.Selector
	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler
	language       string
	maxUpload      int64
	maxPhonemes    int
	window         int
	originPatterns []string

	validate *validator.Validate
	handler  http.Handler
}

// New builds a [Server] over cat and sessions.
func New(cat Catalog, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		catalog:     cat,
		sessions:    sessions,
		images:      imagestore.None{},
		language:    defaultLanguage,
		maxUpload:   defaultMaxUploadBytes,
		maxPhonemes: defaultMaxPhonemes,
		window:      phonics.DefaultWindow,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
	s.validate.RegisterTagNameFunc(jsonName)
	for _, o := range opts {
		o(s)
	}
	if s.selector == nil {
		s.selector = phonics.NewSelector()
	}
	if s.window <= 0 {
		s.window = phonics.DefaultWindow
	}
	if s.metrics != nil && s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}

	mux := http.NewServeMux()
	s.routes(mux)
	var h http.Handler = mux
	if s.metrics != nil {
		h = observe.Middleware(s.metrics)(h)
	}
	s.handler = h
	return s
}

// Handler returns the root handler with all routes and middleware.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes(mux *http.ServeMux) {
	// ── words ─────────────────────────────────────────────────────────────
	mux.HandleFunc("GET /api/phonemes", s.handlePhonemes)
	mux.HandleFunc("POST /api/words", s.handleWords)
	mux.HandleFunc("POST /api/words/next", s.handleNextWord)
	mux.HandleFunc("POST /api/llm-word-selection", s.handleLLMWords)

	// ── speech ────────────────────────────────────────────────────────────
	mux.HandleFunc("POST /api/tts", s.handleTTS)
	mux.HandleFunc("GET /api/voices", s.handleVoices)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)

	// ── sessions ──────────────────────────────────────────────────────────
	mux.HandleFunc("POST /api/sessions", s.handleStartSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleEndSession)
	mux.HandleFunc("POST /api/sessions/{id}/next", s.sessionAction(func(ss *session.Session, _ *http.Request) (session.Snapshot, error) {
		return ss.Next()
	}))
	mux.HandleFunc("POST /api/sessions/{id}/previous", s.sessionAction(func(ss *session.Session, _ *http.Request) (session.Snapshot, error) {
		return ss.Previous()
	}))
	mux.HandleFunc("POST /api/sessions/{id}/replay", s.sessionAction(func(ss *session.Session, r *http.Request) (session.Snapshot, error) {
		return ss.Replay(r.Context())
	}))
	mux.HandleFunc("POST /api/sessions/{id}/acknowledge", s.sessionAction(func(ss *session.Session, _ *http.Request) (session.Snapshot, error) {
		return ss.AcknowledgeCompletion()
	}))
	mux.HandleFunc("POST /api/sessions/{id}/attempts", s.handleAttempt)
	mux.HandleFunc("GET /api/sessions/{id}/suggestion", s.handleSuggestion)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/sessions/{id}/record", s.handleRecord)

	// ── operations ────────────────────────────────────────────────────────
	if dir, ok := s.images.(*imagestore.Dir); ok {
		mux.Handle("GET /images/", http.StripPrefix("/images", dir.Handler()))
	}
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
}
