package session

import (
	"slices"
	"time"

	"github.com/MrWong99/phonoplay/internal/grading"
	"github.com/MrWong99/phonoplay/internal/phonics"
)

// Snapshot is a point-in-time, JSON-serializable view of a session. It is
// what clients render and what the [SnapshotStore] persists.
type Snapshot struct {
	ID       string         `json:"id"`
	State    State          `json:"state"`
	Phonemes []string       `json:"phonemes,omitempty"`
	Policy   string         `json:"policy"`
	Words    []phonics.Word `json:"words"`
	Index    int            `json:"index"`
	// Current is nil outside ready, recording and grading.
	Current       *phonics.Word   `json:"current,omitempty"`
	Feedback      *grading.Result `json:"feedback,omitempty"`
	Transcript    string          `json:"transcript,omitempty"`
	AudioURL      string          `json:"audio_url,omitempty"`
	HasRecording  bool            `json:"has_recording,omitempty"`
	Problem       *Problem        `json:"problem,omitempty"`
	JustCompleted bool            `json:"just_completed,omitempty"`
	Performance   []bool          `json:"recent_performance"`
	Shown         []string        `json:"shown_words,omitempty"`
	Attempts      int             `json:"attempts"`
	Generation    uint64          `json:"generation"`
	// Version increases with every change and orders concurrent deliveries.
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:            s.id,
		State:         s.state,
		Phonemes:      slices.Clone(s.phonemes),
		Policy:        s.policy.String(),
		Words:         slices.Clone(s.words),
		Index:         s.index,
		Transcript:    s.transcript,
		AudioURL:      s.audioURL,
		HasRecording:  s.recording != nil,
		JustCompleted: s.justCompleted,
		Performance:   s.history.Outcomes(),
		Shown:         slices.Clone(s.shown),
		Attempts:      s.attempts,
		Generation:    s.generation,
		Version:       s.version,
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
	}
	if snap.Words == nil {
		snap.Words = []phonics.Word{}
	}
	switch s.state {
	case StateReady, StateRecording, StateGrading:
		if s.index >= 0 && s.index < len(s.words) {
			w := s.words[s.index]
			snap.Current = &w
		}
	}
	if s.feedback != nil {
		fb := *s.feedback
		snap.Feedback = &fb
	}
	if s.problem != nil {
		p := *s.problem
		snap.Problem = &p
	}
	return snap
}

// Restore rebuilds a session from a persisted snapshot, for example after a
// page refresh or a process restart. Work that was in flight is dropped: a
// recording or grading session comes back ready on the same word, without
// feedback for the lost attempt.
func Restore(snap Snapshot, opts ...Option) *Session {
	policy, err := phonics.ParsePolicy(snap.Policy)
	if err != nil {
		policy = phonics.MatchAll
	}
	opts = append([]Option{WithSelection(snap.Phonemes, policy)}, opts...)
	s := New(snap.ID, opts...)

	s.state = snap.State
	s.words = slices.Clone(snap.Words)
	s.index = snap.Index
	s.transcript = snap.Transcript
	s.justCompleted = snap.JustCompleted
	s.shown = slices.Clone(snap.Shown)
	s.attempts = snap.Attempts
	s.generation = snap.Generation
	s.version = snap.Version
	if !snap.CreatedAt.IsZero() {
		s.createdAt = snap.CreatedAt
	}
	if snap.Feedback != nil {
		fb := *snap.Feedback
		s.feedback = &fb
	}
	if snap.Problem != nil {
		p := *snap.Problem
		s.problem = &p
	}
	for _, o := range snap.Performance {
		s.history.Record(o)
	}

	switch s.state {
	case StateRecording, StateGrading:
		s.state = StateReady
		s.feedback = nil
		s.transcript = ""
		s.generation++
	}
	if s.index < 0 || (len(s.words) > 0 && s.index >= len(s.words)) {
		s.index = 0
	}
	if len(s.words) == 0 && (s.state == StateReady || s.state == StateComplete) {
		s.state = StateEmpty
	}
	return s
}
