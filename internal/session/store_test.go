package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/phonoplay/internal/phonics"
	"github.com/MrWong99/phonoplay/internal/session"
)

func TestKey(t *testing.T) {
	t.Parallel()

	if got := session.Key("abc"); got != "phonoplay:session:abc" {
		t.Errorf("Key = %q", got)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := session.NewMemoryStore()

	if _, err := st.Load(ctx, "x"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Load(missing) err = %v", err)
	}

	snap := session.Snapshot{
		ID:      "x",
		State:   session.StateReady,
		Words:   []phonics.Word{{Text: "cat", Phonemes: []string{"K", "A", "T"}}},
		Version: 3,
	}
	if err := st.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	snap.Words[0].Text = "mutated"

	got, err := st.Load(ctx, "x")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Words[0].Text != "cat" || got.Version != 3 {
		t.Errorf("Load = %+v", got)
	}

	older := got
	older.Version = 2
	older.Index = 9
	if err := st.Save(ctx, older); err != nil {
		t.Fatalf("Save older: %v", err)
	}
	if got, _ := st.Load(ctx, "x"); got.Index != 0 {
		t.Errorf("older snapshot overwrote newer one")
	}

	if err := st.Delete(ctx, "x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete(ctx, "x"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if st.Len() != 0 {
		t.Errorf("Len = %d after Delete", st.Len())
	}
}
