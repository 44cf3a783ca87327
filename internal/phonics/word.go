// Package phonics holds the word model and the pure selection logic of a
// practice run: phoneme matching, the adaptive next-word selector and the
// sliding performance window that drives it.
//
// Nothing in this package performs I/O. Catalog backends, sessions and the
// HTTP layer all build on these primitives.
package phonics

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidWord is returned by [Word.Validate] when a word record cannot be
// used for matching.
var ErrInvalidWord = errors.New("phonics: invalid word")

// Word is a catalog entry: the written word, its phoneme decomposition and an
// optional picture.
type Word struct {
	ID          int64    `json:"id,omitempty" yaml:"id"`
	Text        string   `json:"word" yaml:"word"`
	Phonemes    []string `json:"phonemes" yaml:"phonemes"`
	ImagePath   string   `json:"image_path,omitempty" yaml:"image_path"`
	Category    string   `json:"category,omitempty" yaml:"category"`
	Subcategory string   `json:"subcategory,omitempty" yaml:"subcategory"`
}

// HasImage reports whether the word carries a picture reference.
func (w Word) HasImage() bool {
	return strings.TrimSpace(w.ImagePath) != ""
}

// Validate checks the invariants every catalog word must satisfy: a non-empty
// word and at least one non-empty phoneme.
func (w Word) Validate() error {
	if strings.TrimSpace(w.Text) == "" {
		return fmt.Errorf("%w: word text is empty", ErrInvalidWord)
	}
	if len(w.Phonemes) == 0 {
		return fmt.Errorf("%w: %q has no phonemes", ErrInvalidWord, w.Text)
	}
	for i, p := range w.Phonemes {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: %q phoneme %d is empty", ErrInvalidWord, w.Text, i)
		}
	}
	return nil
}

// Normalized returns a copy of w with trimmed text and upper-cased phonemes.
func (w Word) Normalized() Word {
	out := w
	out.Text = strings.TrimSpace(w.Text)
	out.ImagePath = strings.TrimSpace(w.ImagePath)
	out.Phonemes = make([]string, 0, len(w.Phonemes))
	for _, p := range w.Phonemes {
		out.Phonemes = append(out.Phonemes, NormalizePhoneme(p))
	}
	return out
}

// NormalizePhoneme trims and upper-cases a single phoneme token.
func NormalizePhoneme(p string) string {
	return strings.ToUpper(strings.TrimSpace(p))
}

// NormalizeSelection normalizes every phoneme of a selection, dropping empty
// tokens and duplicates. First-seen order is kept so the selection can still
// be displayed the way the user built it.
func NormalizeSelection(selected []string) []string {
	if len(selected) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(selected))
	out := make([]string, 0, len(selected))
	for _, p := range selected {
		n := NormalizePhoneme(p)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// DefaultPhonemes is the phoneme inventory offered when a catalog cannot
// report its own.
var DefaultPhonemes = []string{
	"A", "E", "I", "O", "U",
	"P", "B", "T", "D", "K", "G",
	"F", "V", "S", "Z",
	"M", "N", "L", "R",
}
