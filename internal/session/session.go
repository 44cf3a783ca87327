// Package session runs practice sessions: the state machine that walks a
// learner through a list of words, records and grades their attempts, and
// narrates the current word on request.
//
// A [Session] owns one run. All external work (transcription, narration)
// happens asynchronously and is tagged with the generation counter that was
// current when it started; results arriving after the learner navigated away
// or closed the session are discarded. Every state change produces a
// [Snapshot] that the [Manager] persists and fans out to subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/phonoplay/internal/grading"
	"github.com/MrWong99/phonoplay/internal/observe"
	"github.com/MrWong99/phonoplay/internal/phonics"
	"github.com/MrWong99/phonoplay/pkg/provider/stt"
	"github.com/MrWong99/phonoplay/pkg/provider/tts"
)

// State is the externally visible phase of a session.
type State string

const (
	StateLoading     State = "loading"
	StateReady       State = "ready"
	StateRecording   State = "recording"
	StateGrading     State = "grading"
	StateComplete    State = "complete"
	StateEmpty       State = "empty"
	StateUnavailable State = "unavailable"
)

// ProblemKind classifies a user-visible failure.
type ProblemKind string

const (
	ProblemCatalogUnavailable   ProblemKind = "catalog_unavailable"
	ProblemEmptyResult          ProblemKind = "empty_result"
	ProblemTranscriptionFailure ProblemKind = "transcription_failure"
	ProblemMicrophoneDenied     ProblemKind = "microphone_permission_denied"
	ProblemPlaybackFailure      ProblemKind = "playback_failure"
)

// Problem is a failure the learner should see.
type Problem struct {
	Kind    ProblemKind `json:"kind"`
	Message string      `json:"message"`
}

const (
	msgCatalogUnavailable = "We could not load words right now. Please try again later."
	msgEmptyResult        = "No words match the sounds you picked. Try choosing different sounds."
	msgTranscription      = "Error transcribing audio. Please try again."
	msgMicrophoneDenied   = "Could not access microphone. Please allow permission."
)

var (
	// ErrMicrophoneDenied is returned by a [Microphone] when the learner
	// refused access. Wrap it to keep the cause.
	ErrMicrophoneDenied = errors.New("session: microphone permission denied")

	// ErrRecordingActive is returned by Record while a recording is running.
	ErrRecordingActive = errors.New("session: recording already active")

	// ErrInvalidTransition is returned when an operation is not allowed in
	// the current state.
	ErrInvalidTransition = errors.New("session: invalid transition")

	// ErrClosed is returned by every operation on a closed session.
	ErrClosed = errors.New("session: closed")

	// ErrNotFound is returned by the [Manager] and stores for unknown IDs.
	ErrNotFound = errors.New("session: not found")

	// ErrCatalogUnavailable is returned by [Manager.Start] when no words
	// could be fetched.
	ErrCatalogUnavailable = errors.New("session: catalog unavailable")

	// ErrInvalidRequest is returned by [Manager.Start] for a bad selection.
	ErrInvalidRequest = errors.New("session: invalid request")
)

const (
	// DefaultRecordingTimeout stops a recording the learner forgot to stop.
	DefaultRecordingTimeout = 3 * time.Second

	defaultWorkTimeout = 30 * time.Second
	defaultLanguage    = "eng"
)

// Narrator renders the current word as speech.
type Narrator interface {
	Speak(ctx context.Context, text, voiceID string) (tts.Audio, error)
}

// Option configures a [Session].
type Option func(*Session)

// WithTranscriber sets the speech-to-text backend used for grading.
func WithTranscriber(p stt.Provider) Option {
	return func(s *Session) { s.transcriber = p }
}

// WithGrader replaces the default grader.
func WithGrader(g *grading.Grader) Option {
	return func(s *Session) { s.grader = g }
}

// WithNarrator sets the backend for [Session.Replay] and the voice it uses.
func WithNarrator(n Narrator, voiceID string) Option {
	return func(s *Session) {
		s.narrator = n
		s.voiceID = voiceID
	}
}

// WithSelector sets the adaptive selector behind [Session.Suggest].
func WithSelector(sel *phonics.Selector) Option {
	return func(s *Session) { s.selector = sel }
}

// WithRecordingTimeout sets how long a recording may run. Default: 3s.
func WithRecordingTimeout(d time.Duration) Option {
	return func(s *Session) { s.recordingTimeout = d }
}

// WithWindow sets the size of the performance window. Default:
// [phonics.DefaultWindow].
func WithWindow(n int) Option {
	return func(s *Session) { s.window = n }
}

// WithLanguage sets the transcription language code. Default: "eng".
func WithLanguage(lang string) Option {
	return func(s *Session) { s.language = lang }
}

// WithSelection records the phoneme selection the words were fetched for.
func WithSelection(phonemes []string, policy phonics.Policy) Option {
	return func(s *Session) {
		s.phonemes = phonics.NormalizeSelection(phonemes)
		s.policy = policy
	}
}

// WithObserver registers fn to receive every snapshot. fn runs outside the
// session lock and may be called from several goroutines; use
// [Snapshot.Version] to order deliveries.
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Session) { s.observers = append(s.observers, fn) }
}

// WithMetrics records graded attempts and completions on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session is one practice run. All methods are safe for concurrent use.
type Session struct {
	id string

	transcriber      stt.Provider
	grader           *grading.Grader
	narrator         Narrator
	voiceID          string
	selector         *phonics.Selector
	recordingTimeout time.Duration
	window           int
	language         string
	phonemes         []string
	policy           phonics.Policy
	observers        []func(Snapshot)
	metrics          *observe.Metrics

	// ctx bounds all asynchronous work; Close cancels it and waits on wg.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	state         State
	words         []phonics.Word
	index         int
	generation    uint64
	version       uint64
	feedback      *grading.Result
	transcript    string
	recording     *stt.Audio
	audioURL      string
	problem       *Problem
	justCompleted bool
	history       *phonics.History
	shown         []string
	attempts      int
	capture       Capture
	recordingSeq  uint64
	stopTimer     *time.Timer
	closed        bool
	createdAt     time.Time
	updatedAt     time.Time
}

// New creates a session in [StateLoading].
func New(id string, opts ...Option) *Session {
	s := &Session{
		id:               id,
		recordingTimeout: DefaultRecordingTimeout,
		language:         defaultLanguage,
		state:            StateLoading,
	}
	for _, o := range opts {
		o(s)
	}
	if s.grader == nil {
		s.grader = grading.New()
	}
	if s.selector == nil {
		s.selector = phonics.NewSelector()
	}
	if s.recordingTimeout <= 0 {
		s.recordingTimeout = DefaultRecordingTimeout
	}
	s.history = phonics.NewHistory(s.window)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.createdAt = time.Now()
	s.updatedAt = s.createdAt
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Resolve moves a loading session to ready, empty or unavailable depending
// on the catalog result.
func (s *Session) Resolve(words []phonics.Word, fetchErr error) (Snapshot, error) {
	s.mu.Lock()
	if err := s.checkLocked(StateLoading); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	switch {
	case fetchErr != nil:
		s.state = StateUnavailable
		s.problem = &Problem{Kind: ProblemCatalogUnavailable, Message: msgCatalogUnavailable}
	case len(words) == 0:
		s.state = StateEmpty
		s.problem = &Problem{Kind: ProblemEmptyResult, Message: msgEmptyResult}
	default:
		s.words = slices.Clone(words)
		s.index = 0
		s.state = StateReady
		s.markShownLocked()
	}
	return s.commitLocked()
}

// Next advances to the following word, or completes the session at the last
// one. Any active recording is aborted and pending results are invalidated.
func (s *Session) Next() (Snapshot, error) {
	s.mu.Lock()
	if err := s.checkLocked(StateReady, StateRecording, StateGrading); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	s.advanceLocked()
	if s.index >= len(s.words)-1 {
		s.state = StateComplete
		s.justCompleted = true
		if s.metrics != nil {
			s.metrics.SessionsCompleted.Add(s.ctx, 1)
		}
	} else {
		s.index++
		s.state = StateReady
		s.markShownLocked()
	}
	return s.commitLocked()
}

// Previous goes back one word. At the first word it changes nothing.
func (s *Session) Previous() (Snapshot, error) {
	s.mu.Lock()
	if err := s.checkLocked(StateReady, StateRecording, StateGrading); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	if s.index == 0 {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	s.advanceLocked()
	s.index--
	s.state = StateReady
	return s.commitLocked()
}

// AcknowledgeCompletion clears the just-completed flag once the celebration
// has been shown.
func (s *Session) AcknowledgeCompletion() (Snapshot, error) {
	s.mu.Lock()
	if err := s.checkLocked(StateComplete); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	s.justCompleted = false
	return s.commitLocked()
}

// Suggest runs the adaptive selector over the session's words using the
// learner's recent performance and the words shown so far.
func (s *Session) Suggest() (phonics.Word, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return phonics.Word{}, ErrClosed
	}
	words := slices.Clone(s.words)
	recent := s.history.Outcomes()
	shown := slices.Clone(s.shown)
	s.mu.Unlock()

	return s.selector.SelectNext(words, recent, shown)
}

// Close ends the session: an active recording is released, in-flight work is
// cancelled and waited for. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.releaseCaptureLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// ── internals ────────────────────────────────────────────────────────────────

// checkLocked returns an error unless the session is open and in one of the
// allowed states.
func (s *Session) checkLocked(allowed ...State) error {
	if s.closed {
		return ErrClosed
	}
	if !slices.Contains(allowed, s.state) {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, s.state)
	}
	return nil
}

// advanceLocked is the transient step between two words: it aborts capture,
// invalidates pending results and clears per-word state.
func (s *Session) advanceLocked() {
	s.releaseCaptureLocked()
	s.generation++
	s.feedback = nil
	s.transcript = ""
	s.recording = nil
	s.audioURL = ""
	s.problem = nil
}

func (s *Session) markShownLocked() {
	if s.index < 0 || s.index >= len(s.words) {
		return
	}
	text := s.words[s.index].Text
	if !slices.ContainsFunc(s.shown, func(w string) bool { return strings.EqualFold(w, text) }) {
		s.shown = append(s.shown, text)
	}
}

// currentTextLocked returns the text of the current word, or "" when there
// is none.
func (s *Session) currentTextLocked() string {
	if s.state == StateComplete || s.index < 0 || s.index >= len(s.words) {
		return ""
	}
	return s.words[s.index].Text
}

// commitLocked bumps the version, takes a snapshot, releases s.mu and
// notifies observers.
func (s *Session) commitLocked() (Snapshot, error) {
	s.version++
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
	return snap, nil
}

func (s *Session) emit(snap Snapshot) {
	for _, fn := range s.observers {
		fn(snap)
	}
}

// goAsync runs fn on the session's work group unless the session is closed.
// Must be called with s.mu held.
func (s *Session) goAsync(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(observe.WithSessionID(s.ctx, s.id), defaultWorkTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *Session) logger() *slog.Logger {
	return slog.With("session_id", s.id)
}
