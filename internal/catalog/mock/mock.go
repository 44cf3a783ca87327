// Package mock provides test doubles for the catalog Source and Lookup
// interfaces.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/phonoplay/internal/catalog"
	"github.com/MrWong99/phonoplay/internal/phonics"
)

// Source is a mock implementation of catalog.Source.
type Source struct {
	mu sync.Mutex

	// Words is returned by Candidates when Err is nil.
	Words []phonics.Word

	// Err, if non-nil, is returned by Candidates.
	Err error

	// Queries records every query passed to Candidates.
	Queries []catalog.Query
}

var _ catalog.Source = (*Source)(nil)

// Candidates records q and returns a copy of Words, Err.
func (s *Source) Candidates(_ context.Context, q catalog.Query) ([]phonics.Word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Queries = append(s.Queries, q)
	if s.Err != nil {
		return nil, s.Err
	}
	return slices.Clone(s.Words), nil
}

// CallCount returns the number of Candidates invocations.
func (s *Source) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Queries)
}

// Lookup is a mock implementation of catalog.Lookup.
type Lookup struct {
	mu sync.Mutex

	// Words is filtered by the requested texts when Err is nil.
	Words []phonics.Word
	Err   error

	Requests [][]string
}

var _ catalog.Lookup = (*Lookup)(nil)

// Lookup records the request and returns the entries of Words whose text was
// requested.
func (l *Lookup) Lookup(_ context.Context, words []string) ([]phonics.Word, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Requests = append(l.Requests, slices.Clone(words))
	if l.Err != nil {
		return nil, l.Err
	}
	var out []phonics.Word
	for _, w := range l.Words {
		if slices.Contains(words, w.Text) {
			out = append(out, w)
		}
	}
	return out, nil
}
