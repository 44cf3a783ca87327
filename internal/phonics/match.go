package phonics

import (
	"fmt"
	"slices"
	"strings"
)

// Policy decides how a word's phonemes must relate to a selection.
type Policy int

const (
	// MatchAll keeps words containing every selected phoneme.
	MatchAll Policy = iota
	// MatchAny keeps words containing at least one selected phoneme.
	MatchAny
)

// String implements [fmt.Stringer].
func (p Policy) String() string {
	switch p {
	case MatchAll:
		return "all"
	case MatchAny:
		return "any"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts "all" or "any" (case-insensitive) into a [Policy].
// The empty string selects [MatchAll].
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return MatchAll, nil
	case "any":
		return MatchAny, nil
	default:
		return MatchAll, fmt.Errorf("phonics: unknown match policy %q", s)
	}
}

// Match filters catalog down to the words that satisfy policy against the
// selected phonemes. Comparison is case-insensitive.
//
// An empty selection returns the catalog unchanged, in its original order.
// Otherwise the result is ordered with pictured words first; the sort is
// stable so catalog order is kept within each group.
func Match(catalog []Word, selected []string, policy Policy) []Word {
	sel := NormalizeSelection(selected)
	if len(sel) == 0 {
		return slices.Clone(catalog)
	}

	out := make([]Word, 0, len(catalog))
	for _, w := range catalog {
		if matches(w, sel, policy) {
			out = append(out, w)
		}
	}
	slices.SortStableFunc(out, func(a, b Word) int {
		switch {
		case a.HasImage() == b.HasImage():
			return 0
		case a.HasImage():
			return -1
		default:
			return 1
		}
	})
	return out
}

func matches(w Word, sel []string, policy Policy) bool {
	have := make(map[string]struct{}, len(w.Phonemes))
	for _, p := range w.Phonemes {
		have[NormalizePhoneme(p)] = struct{}{}
	}
	if policy == MatchAny {
		for _, p := range sel {
			if _, ok := have[p]; ok {
				return true
			}
		}
		return false
	}
	for _, p := range sel {
		if _, ok := have[p]; !ok {
			return false
		}
	}
	return true
}
