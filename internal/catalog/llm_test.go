package catalog_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/phonoplay/internal/catalog"
	"github.com/MrWong99/phonoplay/internal/catalog/mock"
	"github.com/MrWong99/phonoplay/internal/phonics"
	"github.com/MrWong99/phonoplay/pkg/provider/llm"
	llmmock "github.com/MrWong99/phonoplay/pkg/provider/llm/mock"
)

func TestParseWordList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{in: "cat, dog, Sun", want: []string{"cat", "dog", "sun"}},
		{in: " cat ,, dog. ", want: []string{"cat", "dog"}},
		{in: "cat, CAT", want: []string{"cat"}},
		{in: "", want: nil},
	}
	for _, tt := range tests {
		if got := catalog.ParseWordList(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("ParseWordList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLLMSource_Candidates(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "cat, kite, zebra"}}
	lookup := &mock.Lookup{Words: []phonics.Word{
		{Text: "cat", Phonemes: []string{"K", "A", "T"}},
		{Text: "dog", Phonemes: []string{"D", "O", "G"}},
	}}
	src := catalog.NewLLMSource(provider, lookup)

	got, err := src.Candidates(context.Background(), catalog.Query{Phonemes: []string{"k", "a"}, Model: "openai/gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if want := []string{"cat"}; !slices.Equal(texts(got), want) {
		t.Errorf("Candidates = %v, want %v", texts(got), want)
	}

	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("Complete called %d times, want 1", len(calls))
	}
	req := calls[0].Req
	if req.Model != "openai/gpt-4o-mini" {
		t.Errorf("Model = %q", req.Model)
	}
	if req.MaxTokens != 60 || req.Temperature != 0.5 {
		t.Errorf("MaxTokens/Temperature = %d/%v, want 60/0.5", req.MaxTokens, req.Temperature)
	}
	if !strings.Contains(req.SystemPrompt, "children's phonics app") {
		t.Errorf("SystemPrompt = %q", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "K, A") {
		t.Errorf("Messages = %+v", req.Messages)
	}
	if !slices.Equal(lookup.Requests[0], []string{"cat", "kite", "zebra"}) {
		t.Errorf("lookup request = %v", lookup.Requests[0])
	}
}

func TestLLMSource_EmptyPhonemes(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{}
	src := catalog.NewLLMSource(provider, &mock.Lookup{})
	_, err := src.Candidates(context.Background(), catalog.Query{Phonemes: []string{" "}})
	if !errors.Is(err, catalog.ErrInvalidQuery) {
		t.Fatalf("err = %v, want ErrInvalidQuery", err)
	}
	if len(provider.Calls()) != 0 {
		t.Error("provider called for an empty selection")
	}
}

func TestLLMSource_ProviderError(t *testing.T) {
	t.Parallel()

	src := catalog.NewLLMSource(&llmmock.Provider{CompleteErr: errors.New("rate limited")}, &mock.Lookup{})
	a, err := catalog.NewAccessor("llm", map[string]catalog.Source{"llm": src})
	if err != nil {
		t.Fatalf("NewAccessor: %v", err)
	}
	_, err = a.FetchCandidates(context.Background(), "", catalog.Query{Phonemes: []string{"K"}})
	if !errors.Is(err, catalog.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestLLMSource_NothingSuggested(t *testing.T) {
	t.Parallel()

	lookup := &mock.Lookup{}
	src := catalog.NewLLMSource(&llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  "}}, lookup)
	got, err := src.Candidates(context.Background(), catalog.Query{Phonemes: []string{"K"}})
	if err != nil || len(got) != 0 {
		t.Fatalf("Candidates = %v, %v; want empty, nil", got, err)
	}
	if len(lookup.Requests) != 0 {
		t.Error("lookup called with no suggestions")
	}
}
