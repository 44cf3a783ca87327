package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/phonoplay/internal/catalog"
	"github.com/MrWong99/phonoplay/internal/observe"
	"github.com/MrWong99/phonoplay/internal/phonics"
)

const (
	// DefaultMaxPhonemes caps the size of a phoneme selection.
	DefaultMaxPhonemes = 5

	subscriberBuffer      = 8
	defaultPersistTimeout = 5 * time.Second
)

// Fetcher supplies candidate words. *catalog.Accessor satisfies it.
type Fetcher interface {
	FetchCandidates(ctx context.Context, source string, q catalog.Query) ([]phonics.Word, error)
}

// StartRequest describes a new practice run.
type StartRequest struct {
	Phonemes      []string
	Policy        phonics.Policy
	Source        string
	Categories    []string
	Subcategories []string
	Model         string
}

// ManagerOption configures a [Manager].
type ManagerOption func(*Manager)

// WithSessionOptions applies opts to every session the manager creates or
// restores.
func WithSessionOptions(opts ...Option) ManagerOption {
	return func(m *Manager) { m.sessionOpts = append(m.sessionOpts, opts...) }
}

// WithMaxWords caps the number of words per session. Zero means no cap.
func WithMaxWords(n int) ManagerOption {
	return func(m *Manager) { m.maxWords = n }
}

// WithMaxPhonemes caps the phoneme selection. Default: 5.
func WithMaxPhonemes(n int) ManagerOption {
	return func(m *Manager) { m.maxPhonemes = n }
}

// WithManagerMetrics records session counts on met and passes it on to
// every session.
func WithManagerMetrics(met *observe.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = met }
}

// WithIDGenerator replaces the uuid generator. Tests use it for stable IDs.
func WithIDGenerator(fn func() string) ManagerOption {
	return func(m *Manager) { m.newID = fn }
}

// Manager owns the live sessions, persists their snapshots and fans them out
// to subscribers. All methods are safe for concurrent use.
type Manager struct {
	fetcher     Fetcher
	store       SnapshotStore
	sessionOpts []Option
	maxWords    int
	maxPhonemes int
	metrics     *observe.Metrics
	newID       func() string

	mu       sync.Mutex
	sessions map[string]*Session
	subs     map[string]map[chan Snapshot]struct{}
	closed   bool

	// persistMu serializes writes so an older snapshot never lands after a
	// newer one.
	persistMu sync.Mutex
	persisted map[string]uint64
}

// NewManager creates a [Manager].
func NewManager(fetcher Fetcher, store SnapshotStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		fetcher:     fetcher,
		store:       store,
		maxPhonemes: DefaultMaxPhonemes,
		newID:       uuid.NewString,
		sessions:    make(map[string]*Session),
		subs:        make(map[string]map[chan Snapshot]struct{}),
		persisted:   make(map[string]uint64),
	}
	for _, o := range opts {
		o(m)
	}
	if m.store == nil {
		m.store = NewMemoryStore()
	}
	return m
}

// Start creates a session, fetches its words and registers it. When the
// catalog is unreachable the session is not registered and the error wraps
// [ErrCatalogUnavailable]; an empty result is a registered session in
// [StateEmpty].
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Session, error) {
	phonemes := phonics.NormalizeSelection(req.Phonemes)
	if len(phonemes) == 0 {
		return nil, fmt.Errorf("%w: select at least one phoneme", ErrInvalidRequest)
	}
	if m.maxPhonemes > 0 && len(phonemes) > m.maxPhonemes {
		return nil, fmt.Errorf("%w: select at most %d phonemes", ErrInvalidRequest, m.maxPhonemes)
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	words, err := m.fetcher.FetchCandidates(ctx, req.Source, catalog.Query{
		Phonemes:      phonemes,
		Policy:        req.Policy,
		Categories:    req.Categories,
		Subcategories: req.Subcategories,
		Model:         req.Model,
	})
	if err != nil && !errors.Is(err, catalog.ErrUnavailable) {
		return nil, err
	}
	if m.maxWords > 0 && len(words) > m.maxWords {
		words = words[:m.maxWords]
	}

	s := New(m.newID(), m.optionsFor(WithSelection(phonemes, req.Policy))...)
	snap, resolveErr := s.Resolve(words, err)
	if resolveErr != nil {
		s.Close()
		return nil, resolveErr
	}
	if m.metrics != nil {
		m.metrics.RecordSessionStarted(ctx, string(snap.State))
	}

	if snap.State == StateUnavailable {
		s.Close()
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	if err := m.register(s); err != nil {
		return nil, err
	}
	slog.Info("practice session started",
		"session_id", s.ID(),
		"phonemes", phonemes,
		"policy", req.Policy.String(),
		"state", snap.State,
		"words", len(snap.Words))
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Resume returns the live session with id, rebuilding it from the snapshot
// store when it is not in memory.
func (m *Manager) Resume(ctx context.Context, id string) (*Session, error) {
	if s, err := m.Get(id); err == nil {
		return s, nil
	}
	snap, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	s := Restore(snap, m.optionsFor()...)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.Close()
		return nil, ErrClosed
	}
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		s.Close()
		return existing, nil
	}
	m.sessions[id] = s
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(ctx, 1)
	}
	slog.Info("practice session resumed", "session_id", id, "state", snap.State)
	return s, nil
}

// End closes a session and deletes its snapshot. It is the "return to
// start" action.
func (m *Manager) End(ctx context.Context, id string) error {
	m.mu.Lock()
	s, live := m.sessions[id]
	delete(m.sessions, id)
	m.closeSubscribersLocked(id)
	m.mu.Unlock()

	if live {
		s.Close()
		if m.metrics != nil {
			m.metrics.ActiveSessions.Add(ctx, -1)
		}
	} else if _, err := m.store.Load(ctx, id); err != nil {
		return err
	}

	m.tombstone(id)
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("session: end %s: %w", id, err)
	}
	slog.Info("practice session ended", "session_id", id)
	return nil
}

// Subscribe returns a channel that receives the session's current snapshot
// followed by every later one. Slow readers lose intermediate snapshots but
// always see the latest. Deliveries may arrive out of order; readers drop
// snapshots whose Version is not newer than the last one seen. Call cancel
// to unsubscribe. The channel is closed when the session ends.
func (m *Manager) Subscribe(ctx context.Context, id string) (<-chan Snapshot, func(), error) {
	s, err := m.Resume(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan Snapshot, subscriberBuffer)
	m.mu.Lock()
	if _, ok := m.sessions[id]; !ok {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}, nil
	}
	ch <- s.Snapshot()
	if m.subs[id] == nil {
		m.subs[id] = make(map[chan Snapshot]struct{})
	}
	m.subs[id][ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if set, ok := m.subs[id]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
			}
		})
	}
	return ch, cancel, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close closes every live session. Snapshots are kept so sessions can be
// resumed after a restart.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		m.closeSubscribersLocked(id)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// ── internals ────────────────────────────────────────────────────────────────

func (m *Manager) optionsFor(extra ...Option) []Option {
	opts := make([]Option, 0, len(m.sessionOpts)+len(extra)+2)
	opts = append(opts, m.sessionOpts...)
	opts = append(opts, extra...)
	if m.metrics != nil {
		opts = append(opts, WithMetrics(m.metrics))
	}
	return append(opts, WithObserver(m.observe))
}

func (m *Manager) register(s *Session) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.Close()
		return ErrClosed
	}
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	return nil
}

// observe receives every snapshot of every managed session.
func (m *Manager) observe(snap Snapshot) {
	if snap.State == StateUnavailable {
		// Unavailable sessions are never registered or persisted.
		return
	}
	m.persist(snap)

	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs[snap.ID] {
		deliverLatest(ch, snap)
	}
}

func (m *Manager) persist(snap Snapshot) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	if last, ok := m.persisted[snap.ID]; ok && last >= snap.Version {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultPersistTimeout)
	defer cancel()
	if err := m.store.Save(ctx, snap); err != nil {
		slog.Warn("persisting session snapshot failed", "session_id", snap.ID, "error", err)
		return
	}
	m.persisted[snap.ID] = snap.Version
}

// tombstone stops any snapshot still in flight for an ended session from
// being written back after the delete.
func (m *Manager) tombstone(id string) {
	m.persistMu.Lock()
	m.persisted[id] = math.MaxUint64
	m.persistMu.Unlock()
}

// closeSubscribersLocked must be called with m.mu held.
func (m *Manager) closeSubscribersLocked(id string) {
	for ch := range m.subs[id] {
		close(ch)
	}
	delete(m.subs, id)
}

// deliverLatest sends snap without blocking, dropping the oldest queued
// snapshot when the buffer is full.
func deliverLatest(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
