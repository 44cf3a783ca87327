package phonics

import (
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"unicode/utf8"
)

// ErrEmptyCandidateSet is returned by [Selector.SelectNext] when there is
// nothing to choose from.
var ErrEmptyCandidateSet = errors.New("phonics: empty candidate set")

// EasyThreshold is the success rate below which the selector switches to the
// shortest available word.
const EasyThreshold = 0.5

// SelectorOption is a functional option for [NewSelector].
type SelectorOption func(*Selector)

// WithRand sets the random source used for uniform picks. Tests use a seeded
// source to get reproducible choices.
func WithRand(r *rand.Rand) SelectorOption {
	return func(s *Selector) {
		s.rnd = r
	}
}

// Selector picks the next word of a practice run. It is safe for concurrent
// use.
type Selector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSelector returns a [Selector]. Without [WithRand] it draws from a
// randomly seeded PCG source.
func NewSelector(opts ...SelectorOption) *Selector {
	s := &Selector{}
	for _, o := range opts {
		o(s)
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// SelectNext chooses a word from candidates.
//
// Words already in shown are skipped unless that would leave nothing, in
// which case all candidates are eligible again. When the success rate over
// recent is below [EasyThreshold] the shortest eligible word is returned
// (first one wins on ties); otherwise the pick is uniformly random.
func (s *Selector) SelectNext(candidates []Word, recent []bool, shown []string) (Word, error) {
	if len(candidates) == 0 {
		return Word{}, ErrEmptyCandidateSet
	}

	pool := excludeShown(candidates, shown)
	if len(pool) == 0 {
		pool = candidates
	}

	if SuccessRate(recent) < EasyThreshold {
		return shortest(pool), nil
	}

	s.mu.Lock()
	i := s.rnd.IntN(len(pool))
	s.mu.Unlock()
	return pool[i], nil
}

// SuccessRate returns the share of true outcomes. An empty window counts as
// full success.
func SuccessRate(recent []bool) float64 {
	if len(recent) == 0 {
		return 1
	}
	var ok int
	for _, r := range recent {
		if r {
			ok++
		}
	}
	return float64(ok) / float64(len(recent))
}

func excludeShown(candidates []Word, shown []string) []Word {
	if len(shown) == 0 {
		return candidates
	}
	seen := make(map[string]struct{}, len(shown))
	for _, w := range shown {
		seen[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	out := make([]Word, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[strings.ToLower(strings.TrimSpace(c.Text))]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

func shortest(pool []Word) Word {
	best := pool[0]
	bestLen := utf8.RuneCountInString(best.Text)
	for _, w := range pool[1:] {
		if n := utf8.RuneCountInString(w.Text); n < bestLen {
			best, bestLen = w, n
		}
	}
	return best
}
