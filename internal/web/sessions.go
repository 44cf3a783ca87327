package web

import (
	"net/http"

	"github.com/MrWong99/phonoplay/internal/phonics"
	"github.com/MrWong99/phonoplay/internal/session"
)

type startSessionRequest struct {
	Phonemes      []string `json:"phonemes" validate:"required,min=1,dive,required,max=8"`
	Policy        string   `json:"policy" validate:"max=8"`
	Source        string   `json:"source" validate:"max=32"`
	Categories    []string `json:"categories" validate:"max=20,dive,max=64"`
	Subcategories []string `json:"subcategories" validate:"max=20,dive,max=64"`
	Model         string   `json:"model" validate:"max=128"`
}

// snapshotDTO is a session snapshot with image URLs resolved.
type snapshotDTO struct {
	session.Snapshot
	Words   []wordDTO `json:"words"`
	Current *wordDTO  `json:"current,omitempty"`
}

func (s *Server) snapshotDTO(snap session.Snapshot) snapshotDTO {
	out := snapshotDTO{Snapshot: snap, Words: s.wordDTOs(snap.Words)}
	if snap.Current != nil {
		cur := s.wordDTO(*snap.Current)
		out.Current = &cur
	}
	return out
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if n := len(phonics.NormalizeSelection(req.Phonemes)); s.maxPhonemes > 0 && n > s.maxPhonemes {
		writeError(w, r, errorf(session.ErrInvalidRequest, "select at most %d phonemes", s.maxPhonemes))
		return
	}
	policy, err := phonics.ParsePolicy(req.Policy)
	if err != nil {
		writeError(w, r, errorf(errBadRequest, "%v", err))
		return
	}

	ss, err := s.sessions.Start(r.Context(), session.StartRequest{
		Phonemes:      req.Phonemes,
		Policy:        policy,
		Source:        req.Source,
		Categories:    req.Categories,
		Subcategories: req.Subcategories,
		Model:         req.Model,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+ss.ID())
	writeJSON(w, http.StatusCreated, s.snapshotDTO(ss.Snapshot()))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ss, err := s.sessions.Resume(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshotDTO(ss.Snapshot()))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.End(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sessionAction adapts a snapshot-returning session operation to a handler.
func (s *Server) sessionAction(op func(*session.Session, *http.Request) (session.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ss, err := s.sessions.Resume(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		snap, err := op(ss, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.snapshotDTO(snap))
	}
}

// handleAttempt grades an uploaded recording of the current word. Grading
// finishes in the background; the response is the grading snapshot.
func (s *Server) handleAttempt(w http.ResponseWriter, r *http.Request) {
	ss, err := s.sessions.Resume(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	audio, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := ss.Submit(r.Context(), audio)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.snapshotDTO(snap))
}

func (s *Server) handleSuggestion(w http.ResponseWriter, r *http.Request) {
	ss, err := s.sessions.Resume(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	word, err := ss.Suggest()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"word": s.wordDTO(word)})
}
