package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/phonoplay/internal/catalog"
	catalogmock "github.com/MrWong99/phonoplay/internal/catalog/mock"
	"github.com/MrWong99/phonoplay/internal/grading"
	"github.com/MrWong99/phonoplay/internal/phonics"
	"github.com/MrWong99/phonoplay/internal/session"
	"github.com/MrWong99/phonoplay/pkg/provider/stt"
	sttmock "github.com/MrWong99/phonoplay/pkg/provider/stt/mock"
)

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("s%d", n.Add(1)) }
}

func newAccessor(t *testing.T, src catalog.Source) *catalog.Accessor {
	t.Helper()
	a, err := catalog.NewAccessor("static", map[string]catalog.Source{"static": src})
	if err != nil {
		t.Fatalf("NewAccessor: %v", err)
	}
	return a
}

func newManager(t *testing.T, src catalog.Source, store session.SnapshotStore, opts ...session.ManagerOption) *session.Manager {
	t.Helper()
	opts = append([]session.ManagerOption{session.WithIDGenerator(sequentialIDs())}, opts...)
	m := session.NewManager(newAccessor(t, src), store, opts...)
	t.Cleanup(m.Close)
	return m
}

func recv(t *testing.T, ch <-chan session.Snapshot) session.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return session.Snapshot{}
}

func TestManager_StartReady(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	m := newManager(t, catalog.NewMemory(catalog.DefaultSeed), store)

	s, err := m.Start(context.Background(), session.StartRequest{Phonemes: []string{"k"}, Policy: phonics.MatchAll})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := s.Snapshot()
	if s.ID() != "s1" || snap.State != session.StateReady {
		t.Fatalf("Start = %s in %s", s.ID(), snap.State)
	}
	if len(snap.Words) != 2 || snap.Words[0].Text != "cat" || snap.Words[1].Text != "milk" {
		t.Errorf("words = %v, want [cat milk]", snap.Words)
	}

	if got, err := m.Get("s1"); err != nil || got != s {
		t.Errorf("Get = %v, %v", got, err)
	}
	stored, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("snapshot not persisted: %v", err)
	}
	if stored.Version != snap.Version {
		t.Errorf("stored version = %d, want %d", stored.Version, snap.Version)
	}
}

func TestManager_StartEmpty(t *testing.T) {
	t.Parallel()

	m := newManager(t, catalog.NewMemory(catalog.DefaultSeed), nil)
	s, err := m.Start(context.Background(), session.StartRequest{Phonemes: []string{"Z"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != session.StateEmpty {
		t.Errorf("state = %s, want empty", s.State())
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestManager_StartUnavailable(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	m := newManager(t, &catalogmock.Source{Err: errors.New("connection refused")}, store)

	_, err := m.Start(context.Background(), session.StartRequest{Phonemes: []string{"K"}})
	if !errors.Is(err, session.ErrCatalogUnavailable) {
		t.Fatalf("Start err = %v, want ErrCatalogUnavailable", err)
	}
	if !errors.Is(err, catalog.ErrUnavailable) {
		t.Errorf("Start err = %v, want it to keep catalog.ErrUnavailable", err)
	}
	if m.Len() != 0 || store.Len() != 0 {
		t.Errorf("unavailable session leaked: live=%d stored=%d", m.Len(), store.Len())
	}
}

func TestManager_StartValidation(t *testing.T) {
	t.Parallel()

	src := &catalogmock.Source{}
	m := newManager(t, src, nil, session.WithMaxPhonemes(2))

	tests := []struct {
		name     string
		phonemes []string
	}{
		{name: "none", phonemes: nil},
		{name: "blank", phonemes: []string{" ", ""}},
		{name: "too many", phonemes: []string{"A", "B", "C"}},
	}
	for _, tt := range tests {
		_, err := m.Start(context.Background(), session.StartRequest{Phonemes: tt.phonemes})
		if !errors.Is(err, session.ErrInvalidRequest) {
			t.Errorf("%s: err = %v, want ErrInvalidRequest", tt.name, err)
		}
	}
	if src.CallCount() != 0 {
		t.Errorf("catalog queried %d times for invalid requests", src.CallCount())
	}

	_, err := m.Start(context.Background(), session.StartRequest{Phonemes: []string{"K"}, Source: "nope"})
	if !errors.Is(err, catalog.ErrUnknownSource) {
		t.Errorf("unknown source err = %v, want ErrUnknownSource", err)
	}
}

func TestManager_MaxWords(t *testing.T) {
	t.Parallel()

	src := &catalogmock.Source{Words: []phonics.Word{
		{Text: "cat", Phonemes: []string{"K", "A", "T"}},
		{Text: "kit", Phonemes: []string{"K", "I", "T"}},
		{Text: "kid", Phonemes: []string{"K", "I", "D"}},
	}}
	m := newManager(t, src, nil, session.WithMaxWords(2))

	s, err := m.Start(context.Background(), session.StartRequest{Phonemes: []string{"K"}, Categories: []string{"animals"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n := len(s.Snapshot().Words); n != 2 {
		t.Errorf("words = %d, want 2", n)
	}
	if q := src.Queries[0]; len(q.Categories) != 1 || q.Phonemes[0] != "K" {
		t.Errorf("query = %+v", q)
	}
}

func TestManager_ResumeAfterRestart(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	src := catalog.NewMemory(catalog.DefaultSeed)

	first := session.NewManager(newAccessor(t, src), store, session.WithIDGenerator(sequentialIDs()))
	s, err := first.Start(context.Background(), session.StartRequest{Phonemes: []string{"K"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := s.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	first.Close()

	if store.Len() != 1 {
		t.Fatalf("store holds %d snapshots after Close, want 1", store.Len())
	}

	second := newManager(t, src, store)
	if _, err := second.Get("s1"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Get before Resume err = %v", err)
	}
	r, err := second.Resume(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	snap := r.Snapshot()
	if snap.Index != 1 || snap.Current == nil || snap.Current.Text != "milk" {
		t.Errorf("resumed at index %d current %v", snap.Index, snap.Current)
	}
	again, err := second.Resume(context.Background(), "s1")
	if err != nil || again != r {
		t.Errorf("second Resume returned a different session: %v", err)
	}

	if _, err := second.Resume(context.Background(), "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Resume(missing) err = %v", err)
	}
}

func TestManager_End(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	m := newManager(t, catalog.NewMemory(catalog.DefaultSeed), store)
	s, err := m.Start(context.Background(), session.StartRequest{Phonemes: []string{"K"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := m.End(context.Background(), s.ID()); err != nil {
		t.Fatalf("End: %v", err)
	}
	if m.Len() != 0 || store.Len() != 0 {
		t.Errorf("after End: live=%d stored=%d", m.Len(), store.Len())
	}
	if _, err := s.Next(); !errors.Is(err, session.ErrClosed) {
		t.Errorf("ended session still usable: %v", err)
	}
	if err := m.End(context.Background(), s.ID()); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("second End err = %v, want ErrNotFound", err)
	}
}

func TestManager_Subscribe(t *testing.T) {
	t.Parallel()

	m := newManager(t, catalog.NewMemory(catalog.DefaultSeed), nil)
	s, err := m.Start(context.Background(), session.StartRequest{Phonemes: []string{"K"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	ch, cancel, err := m.Subscribe(context.Background(), s.ID())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	first := recv(t, ch)
	if first.State != session.StateReady || first.Index != 0 {
		t.Errorf("initial snapshot = %s at %d", first.State, first.Index)
	}

	if _, err := s.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	next := recv(t, ch)
	if next.Index != 1 || next.Version <= first.Version {
		t.Errorf("update = index %d version %d, want index 1 after version %d", next.Index, next.Version, first.Version)
	}

	if err := m.End(context.Background(), s.ID()); err != nil {
		t.Fatalf("End: %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received snapshot after End, want closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed by End")
	}
	cancel()
}

func TestManager_SubscribeUnknown(t *testing.T) {
	t.Parallel()

	m := newManager(t, catalog.NewMemory(catalog.DefaultSeed), nil)
	if _, _, err := m.Subscribe(context.Background(), "nope"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Subscribe err = %v, want ErrNotFound", err)
	}
}

func TestManager_Close(t *testing.T) {
	t.Parallel()

	m := session.NewManager(newAccessor(t, catalog.NewMemory(catalog.DefaultSeed)), nil)
	s, err := m.Start(context.Background(), session.StartRequest{Phonemes: []string{"K"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Close()
	m.Close()

	if m.Len() != 0 {
		t.Errorf("Len after Close = %d", m.Len())
	}
	if _, err := s.Previous(); !errors.Is(err, session.ErrClosed) {
		t.Errorf("session not closed: %v", err)
	}
	if _, err := m.Start(context.Background(), session.StartRequest{Phonemes: []string{"K"}}); !errors.Is(err, session.ErrClosed) {
		t.Errorf("Start after Close err = %v", err)
	}
}

func TestManager_PracticeRunEndToEnd(t *testing.T) {
	t.Parallel()

	words := []phonics.Word{
		{Text: "cat", Phonemes: []string{"k", "a", "t"}},
		{Text: "dog", Phonemes: []string{"d", "o", "g"}},
	}
	transcriber := &sttmock.Provider{Result: stt.Transcript{Text: "cat"}}
	m := newManager(t, catalog.NewMemory(words), session.NewMemoryStore(),
		session.WithSessionOptions(session.WithTranscriber(transcriber)))

	s, err := m.Start(context.Background(), session.StartRequest{
		Phonemes: []string{"k", "a", "t"},
		Policy:   phonics.MatchAll,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := s.Snapshot()
	if snap.State != session.StateReady || snap.Index != 0 || snap.Current == nil || snap.Current.Text != "cat" {
		t.Fatalf("Start = %s at %d showing %v, want ready(0) showing cat", snap.State, snap.Index, snap.Current)
	}
	if len(snap.Words) != 1 {
		t.Fatalf("words = %v, want only cat", snap.Words)
	}

	if _, err := s.Submit(context.Background(), stt.Audio{Data: []byte("RIFF"), MIMEType: "audio/wav"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap = waitFor(t, s, "feedback", func(sn session.Snapshot) bool { return sn.Feedback != nil })
	if snap.Feedback.Verdict != grading.Correct {
		t.Errorf("verdict = %s, want correct", snap.Feedback.Verdict)
	}

	snap, err = s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if snap.State != session.StateComplete || !snap.JustCompleted {
		t.Errorf("after Next: state=%s justCompleted=%v, want complete and true", snap.State, snap.JustCompleted)
	}
}
