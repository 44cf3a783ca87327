package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/MrWong99/phonoplay/internal/catalog"
	"github.com/MrWong99/phonoplay/internal/imagestore"
	"github.com/MrWong99/phonoplay/internal/phonics"
)

// wordDTO is a catalog word as sent to clients.
type wordDTO struct {
	ID          int64    `json:"id,omitempty"`
	Word        string   `json:"word"`
	Phonemes    []string `json:"phonemes"`
	ImagePath   string   `json:"image_path,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	Category    string   `json:"category,omitempty"`
	Subcategory string   `json:"subcategory,omitempty"`
}

func (s *Server) wordDTO(w phonics.Word) wordDTO {
	return wordDTO{
		ID:          w.ID,
		Word:        w.Text,
		Phonemes:    w.Phonemes,
		ImagePath:   w.ImagePath,
		ImageURL:    imagestore.ImageURL(s.images, w),
		Category:    w.Category,
		Subcategory: w.Subcategory,
	}
}

func (s *Server) wordDTOs(ws []phonics.Word) []wordDTO {
	out := make([]wordDTO, len(ws))
	for i, w := range ws {
		out[i] = s.wordDTO(w)
	}
	return out
}

type wordsRequest struct {
	Phonemes      []string `json:"phonemes" validate:"max=40,dive,max=8"`
	Policy        string   `json:"policy" validate:"max=8"`
	Source        string   `json:"source" validate:"max=32"`
	Categories    []string `json:"categories" validate:"max=20,dive,max=64"`
	Subcategories []string `json:"subcategories" validate:"max=20,dive,max=64"`
	Limit         int      `json:"limit" validate:"gte=0,lte=200"`
}

func (req wordsRequest) query() (catalog.Query, error) {
	policy, err := phonics.ParsePolicy(req.Policy)
	if err != nil {
		return catalog.Query{}, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return catalog.Query{
		Phonemes:      req.Phonemes,
		Policy:        policy,
		Limit:         req.Limit,
		Categories:    req.Categories,
		Subcategories: req.Subcategories,
	}, nil
}

type nextWordRequest struct {
	wordsRequest
	RecentPerformance []bool   `json:"recent_performance" validate:"max=100"`
	PreviousWords     []string `json:"previous_words" validate:"max=500,dive,max=64"`
}

type llmWordsRequest struct {
	Phonemes []string `json:"phonemes" validate:"required,min=1,max=40,dive,required,max=8"`
	Model    string   `json:"model" validate:"max=128"`
}

func (s *Server) handlePhonemes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"phonemes": s.catalog.Phonemes(r.Context())})
}

func (s *Server) handleWords(w http.ResponseWriter, r *http.Request) {
	var req wordsRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	q, err := req.query()
	if err != nil {
		writeError(w, r, err)
		return
	}
	words, err := s.catalog.FetchCandidates(r.Context(), req.Source, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"words": s.wordDTOs(words)})
}

func (s *Server) handleNextWord(w http.ResponseWriter, r *http.Request) {
	var req nextWordRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	q, err := req.query()
	if err != nil {
		writeError(w, r, err)
		return
	}
	words, err := s.catalog.FetchCandidates(r.Context(), req.Source, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	recent := req.RecentPerformance
	if len(recent) > s.window {
		recent = recent[len(recent)-s.window:]
	}
	next, err := s.selector.SelectNext(words, recent, req.PreviousWords)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"word": s.wordDTO(next)})
}

// handleLLMWords asks the language model for words and returns those the
// catalog knows. The model is taken from the body, then the "model" query
// parameter, then the provider default.
func (s *Server) handleLLMWords(w http.ResponseWriter, r *http.Request) {
	if s.llmWords == nil {
		writeError(w, r, fmt.Errorf("%w: llm word selection", errNotConfigured))
		return
	}
	var req llmWordsRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = strings.TrimSpace(r.URL.Query().Get("model"))
	}

	words, err := s.llmWords.Candidates(r.Context(), catalog.Query{Phonemes: req.Phonemes, Model: model})
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %w", errUpstreamFailed, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"words": s.wordDTOs(words)})
}
