package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/phonoplay/internal/phonics"
	"github.com/MrWong99/phonoplay/pkg/provider/llm"
)

const (
	llmSystemPrompt = "You are a helpful assistant for a children's phonics app."
	llmMaxTokens    = 60
	llmTemperature  = 0.5
)

// LLMSource asks a language model for child-friendly words that use the
// selected phonemes and keeps only those the backing [Lookup] knows.
type LLMSource struct {
	provider llm.Provider
	lookup   Lookup
}

var _ Source = (*LLMSource)(nil)

// NewLLMSource creates an [LLMSource].
func NewLLMSource(provider llm.Provider, lookup Lookup) *LLMSource {
	return &LLMSource{provider: provider, lookup: lookup}
}

// Prompt builds the user prompt for a phoneme selection.
func Prompt(phonemes []string) string {
	return fmt.Sprintf("List 10 simple, child-friendly English words that use these phonemes: %s. "+
		"Output ONLY a comma-separated list of the words, with no numbering, no dashes, "+
		"no explanations, and no extra text.", strings.Join(phonemes, ", "))
}

// Candidates implements [Source]. It fails with [ErrInvalidQuery] when no
// phonemes are selected. Suggested words absent from the catalog are
// dropped without error.
func (s *LLMSource) Candidates(ctx context.Context, q Query) ([]phonics.Word, error) {
	q = q.normalized()
	if len(q.Phonemes) == 0 {
		return nil, fmt.Errorf("%w: at least one phoneme is required", ErrInvalidQuery)
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: llmSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: Prompt(q.Phonemes)}},
		Model:        q.Model,
		Temperature:  llmTemperature,
		MaxTokens:    llmMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: llm: complete: %w", err)
	}

	suggested := ParseWordList(resp.Content)
	slog.Debug("llm suggested words", "model", resp.Model, "words", suggested)
	if len(suggested) == 0 {
		return nil, nil
	}

	words, err := s.lookup.Lookup(ctx, suggested)
	if err != nil {
		return nil, fmt.Errorf("catalog: llm: lookup: %w", err)
	}
	out := make([]phonics.Word, 0, len(words))
	for _, w := range words {
		if matchesCategory(w, q) {
			out = append(out, w)
		}
	}
	return out, nil
}

// ParseWordList splits a comma-separated model answer into lower-cased,
// de-duplicated words. Surrounding whitespace and trailing full stops are
// removed; empty items are skipped.
func ParseWordList(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, item := range strings.Split(text, ",") {
		w := strings.ToLower(strings.TrimSpace(item))
		w = strings.TrimRight(w, ".")
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
