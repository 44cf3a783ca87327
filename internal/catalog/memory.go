package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/phonoplay/internal/phonics"
)

// DefaultSeed is the built-in word list used when no seed file is configured.
var DefaultSeed = []phonics.Word{
	{ID: 1, Text: "cat", Phonemes: []string{"K", "A", "T"}, ImagePath: "words/cat.webp"},
	{ID: 2, Text: "dog", Phonemes: []string{"D", "O", "G"}, ImagePath: "words/dog.webp"},
	{ID: 3, Text: "sun", Phonemes: []string{"S", "U", "N"}, ImagePath: "words/sun.webp"},
	{ID: 4, Text: "red", Phonemes: []string{"R", "E", "D"}, ImagePath: "words/red.webp"},
	{ID: 5, Text: "milk", Phonemes: []string{"M", "I", "L", "K"}, ImagePath: "words/milk.webp"},
}

// Memory is a static, in-process catalog. It implements [Source], [Lookup]
// and [Inventory] and is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	words []phonics.Word
}

var (
	_ Source    = (*Memory)(nil)
	_ Lookup    = (*Memory)(nil)
	_ Inventory = (*Memory)(nil)
)

// NewMemory returns a [Memory] catalog holding normalized copies of words.
func NewMemory(words []phonics.Word) *Memory {
	m := &Memory{}
	m.Replace(words)
	return m
}

// Replace swaps the catalog contents.
func (m *Memory) Replace(words []phonics.Word) {
	norm := make([]phonics.Word, len(words))
	for i, w := range words {
		norm[i] = w.Normalized()
	}
	m.mu.Lock()
	m.words = norm
	m.mu.Unlock()
}

// Words returns a copy of the catalog in seed order.
func (m *Memory) Words() []phonics.Word {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.words)
}

// Candidates implements [Source]. The limit is applied after the phoneme
// policy and the image-first ordering.
func (m *Memory) Candidates(_ context.Context, q Query) ([]phonics.Word, error) {
	q = q.normalized()

	m.mu.RLock()
	pool := make([]phonics.Word, 0, len(m.words))
	for _, w := range m.words {
		if matchesCategory(w, q) {
			pool = append(pool, w)
		}
	}
	m.mu.RUnlock()

	out := phonics.Match(pool, q.Phonemes, q.Policy)
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Lookup implements [Lookup]. Matching is case-insensitive; the result
// follows catalog order.
func (m *Memory) Lookup(_ context.Context, words []string) ([]phonics.Word, error) {
	want := make(map[string]bool, len(words))
	for _, w := range words {
		want[strings.ToLower(strings.TrimSpace(w))] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []phonics.Word
	for _, w := range m.words {
		if want[strings.ToLower(w.Text)] {
			out = append(out, w)
		}
	}
	return out, nil
}

// Phonemes implements [Inventory]: the sorted union of every word's phonemes.
func (m *Memory) Phonemes(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, w := range m.words {
		for _, p := range w.Phonemes {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	slices.Sort(out)
	return out, nil
}

// ── Seed files ───────────────────────────────────────────────────────────────

// seedFile is the on-disk layout of a seed file:
//
//	words:
//	  - word: cat
//	    phonemes: [K, A, T]
//	    image_path: words/cat.webp
type seedFile struct {
	Words []phonics.Word `yaml:"words"`
}

// LoadSeedFile reads and validates a YAML seed file.
func LoadSeedFile(path string) ([]phonics.Word, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open seed file: %w", err)
	}
	defer f.Close()
	return LoadSeed(f)
}

// LoadSeed decodes a YAML seed document from r. Unknown fields are rejected
// and every invalid word is reported.
func LoadSeed(r io.Reader) ([]phonics.Word, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sf seedFile
	if err := dec.Decode(&sf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("catalog: seed file is empty")
		}
		return nil, fmt.Errorf("catalog: decode seed: %w", err)
	}

	var errs []error
	seen := make(map[string]bool, len(sf.Words))
	for i, w := range sf.Words {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("words[%d]: %w", i, err))
			continue
		}
		key := strings.ToLower(strings.TrimSpace(w.Text))
		if seen[key] {
			errs = append(errs, fmt.Errorf("words[%d]: duplicate word %q", i, w.Text))
		}
		seen[key] = true
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("catalog: invalid seed: %w", err)
	}
	return sf.Words, nil
}
