// Package grading decides whether a transcribed attempt says the target word.
//
// Both strings are normalized (lower-cased, punctuation stripped, whitespace
// collapsed) and compared with a forgiving rule: equal, or either one
// contains the other. A phonetic near-miss check using Double Metaphone and
// Jaro-Winkler picks a gentler retry message but never changes the verdict.
package grading

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

// Verdict is the outcome of grading one attempt.
type Verdict string

const (
	// Correct means the attempt matched the target word.
	Correct Verdict = "correct"
	// Retry means the attempt did not match and the learner should try again.
	Retry Verdict = "retry"
)

// UnintelligibleMessage is shown when no transcript could be obtained.
const UnintelligibleMessage = "Sorry, I could not understand. Please try again."

const defaultNearMissThreshold = 0.70

var (
	punctuation = regexp.MustCompile("[.,/#!$%^&*;:{}=\\-_`~()?\"]")
	whitespace  = regexp.MustCompile(`\s+`)
)

var (
	praise = []string{
		"Great job!",
		"Well done!",
		"Perfect!",
		"Awesome!",
		"You're amazing!",
		"Brilliant!",
	}
	encouragement = []string{
		"Try again!",
		"Give it another go!",
		"Keep trying!",
		"You can do it!",
	}
)

// Result is the graded attempt.
type Result struct {
	Verdict Verdict `json:"verdict"`
	// Heard is the transcript as returned by the speech-to-text provider.
	Heard   string `json:"heard,omitempty"`
	Message string `json:"message"`
	// NearMiss is set when a wrong attempt sounds close to the target.
	NearMiss bool `json:"near_miss,omitempty"`
}

// IsCorrect reports whether the verdict is [Correct].
func (r Result) IsCorrect() bool { return r.Verdict == Correct }

// Normalize lower-cases s, strips punctuation, collapses whitespace runs to a
// single space and trims the ends. Normalize is idempotent.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = punctuation.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Match reports whether transcript says target under the forgiving rule.
// An empty transcript never matches.
func Match(transcript, target string) bool {
	heard := Normalize(transcript)
	want := Normalize(target)
	if heard == "" || want == "" {
		return false
	}
	return heard == want || strings.Contains(heard, want) || strings.Contains(want, heard)
}

// Option is a functional option for configuring a [Grader].
type Option func(*Grader)

// WithNearMissThreshold sets the minimum Jaro-Winkler similarity for a
// phonetically similar attempt to count as a near miss. Default: 0.70.
func WithNearMissThreshold(threshold float64) Option {
	return func(g *Grader) {
		g.nearMissThreshold = threshold
	}
}

// Grader grades attempts. It is read-only after construction and safe for
// concurrent use.
type Grader struct {
	nearMissThreshold float64
}

// New returns a [Grader] configured with opts.
func New(opts ...Option) *Grader {
	g := &Grader{nearMissThreshold: defaultNearMissThreshold}
	for _, o := range opts {
		o(g)
	}
	return g
}

var defaultGrader = New()

// Grade grades transcript against target with the default [Grader].
func Grade(transcript, target string) Result {
	return defaultGrader.Grade(transcript, target)
}

// Grade grades transcript against target.
func (g *Grader) Grade(transcript, target string) Result {
	heard := strings.TrimSpace(transcript)
	if Normalize(heard) == "" {
		return Unintelligible()
	}
	if Match(heard, target) {
		return Result{
			Verdict: Correct,
			Heard:   heard,
			Message: pick(praise, target),
		}
	}
	if g.nearMiss(Normalize(heard), Normalize(target)) {
		return Result{
			Verdict:  Retry,
			Heard:    heard,
			Message:  fmt.Sprintf("Almost there! I heard %q.", heard),
			NearMiss: true,
		}
	}
	return Result{
		Verdict: Retry,
		Heard:   heard,
		Message: fmt.Sprintf("%s I heard %q.", pick(encouragement, target), heard),
	}
}

// Unintelligible is the retry result used when the transcription call failed
// or produced nothing usable.
func Unintelligible() Result {
	return Result{Verdict: Retry, Message: UnintelligibleMessage}
}

// nearMiss compares every heard token against the target and accepts the
// best one if its Double Metaphone codes overlap and the Jaro-Winkler score
// clears the threshold.
func (g *Grader) nearMiss(heard, target string) bool {
	if heard == "" || target == "" {
		return false
	}
	tp, ts := matchr.DoubleMetaphone(target)
	for _, tok := range strings.Fields(heard) {
		hp, hs := matchr.DoubleMetaphone(tok)
		if !codesOverlap(hp, hs, tp, ts) {
			continue
		}
		if matchr.JaroWinkler(tok, target, false) >= g.nearMissThreshold {
			return true
		}
	}
	return false
}

func codesOverlap(ap, as, bp, bs string) bool {
	for _, a := range []string{ap, as} {
		if a == "" {
			continue
		}
		for _, b := range []string{bp, bs} {
			if a == b {
				return true
			}
		}
	}
	return false
}

// pick returns a message chosen deterministically from target.
func pick(messages []string, target string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(Normalize(target)))
	return messages[h.Sum32()%uint32(len(messages))]
}
