package grading_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/phonoplay/internal/grading"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{in: "Cat!", want: "cat"},
		{in: "  The   CAT.  ", want: "the cat"},
		{in: "\"sun\"?", want: "sun"},
		{in: "red-hot (milk)", want: "redhot milk"},
		{in: "a\tb\nc", want: "a b c"},
		{in: "...", want: ""},
		{in: "it's", want: "it's"},
	}
	for _, tt := range tests {
		if got := grading.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"Cat!", "  The   CAT.  ", "{dog}~", "A - b _ c", "", "MiLk  "}
	for _, in := range inputs {
		once := grading.Normalize(in)
		if twice := grading.Normalize(once); twice != once {
			t.Errorf("Normalize(Normalize(%q)) = %q, want %q", in, twice, once)
		}
	}
}

func TestGrade(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		transcript string
		target     string
		want       grading.Verdict
	}{
		{name: "punctuation and case", transcript: "Cat!", target: "cat", want: grading.Correct},
		{name: "transcript contains target", transcript: "the cat", target: "cat", want: grading.Correct},
		{name: "target contains transcript", transcript: "sun", target: "sunflower", want: grading.Correct},
		{name: "different word", transcript: "dog", target: "cat", want: grading.Retry},
		{name: "empty transcript", transcript: "", target: "cat", want: grading.Retry},
		{name: "punctuation only", transcript: "?!", target: "cat", want: grading.Retry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := grading.Grade(tt.transcript, tt.target)
			if got.Verdict != tt.want {
				t.Errorf("Grade(%q, %q).Verdict = %s, want %s", tt.transcript, tt.target, got.Verdict, tt.want)
			}
			if got.Message == "" {
				t.Errorf("Grade(%q, %q).Message is empty", tt.transcript, tt.target)
			}
		})
	}
}

func TestGrade_RetryMentionsWhatWasHeard(t *testing.T) {
	t.Parallel()

	got := grading.Grade("dog", "cat")
	if got.Heard != "dog" {
		t.Errorf("Heard = %q, want %q", got.Heard, "dog")
	}
	if !strings.Contains(got.Message, `"dog"`) {
		t.Errorf("Message = %q, want it to quote the transcript", got.Message)
	}
	if got.NearMiss {
		t.Errorf("NearMiss = true for dog/cat")
	}
}

func TestGrade_NearMissKeepsRetry(t *testing.T) {
	t.Parallel()

	got := grading.Grade("kat", "cat")
	if got.Verdict != grading.Retry {
		t.Fatalf("Verdict = %s, want retry", got.Verdict)
	}
	if !got.NearMiss {
		t.Errorf("NearMiss = false, want true for kat/cat")
	}
	if !strings.HasPrefix(got.Message, "Almost there!") {
		t.Errorf("Message = %q, want near-miss wording", got.Message)
	}
}

func TestGrade_StrictThresholdDisablesNearMiss(t *testing.T) {
	t.Parallel()

	g := grading.New(grading.WithNearMissThreshold(1.01))
	if got := g.Grade("kat", "cat"); got.NearMiss {
		t.Errorf("NearMiss = true with threshold above 1")
	}
}

func TestGrade_DeterministicPraise(t *testing.T) {
	t.Parallel()

	a := grading.Grade("cat", "cat")
	b := grading.Grade("CAT.", "cat")
	if a.Message != b.Message {
		t.Errorf("praise differs for the same target: %q vs %q", a.Message, b.Message)
	}
}

func TestUnintelligible(t *testing.T) {
	t.Parallel()

	got := grading.Unintelligible()
	if got.Verdict != grading.Retry || got.Message != grading.UnintelligibleMessage {
		t.Errorf("Unintelligible() = %+v", got)
	}
	if got.IsCorrect() {
		t.Errorf("Unintelligible().IsCorrect() = true")
	}
}
