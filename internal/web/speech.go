package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/MrWong99/phonoplay/pkg/provider/stt"
)

type ttsRequest struct {
	Text    string `json:"text" validate:"required,max=500"`
	VoiceID string `json:"voice_id" validate:"max=128"`
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if s.speaker == nil {
		writeError(w, r, fmt.Errorf("%w: text to speech", errNotConfigured))
		return
	}
	var req ttsRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	audio, err := s.speaker.Speak(r.Context(), req.Text, req.VoiceID)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %w", errUpstreamFailed, err))
		return
	}
	url := audio.Playable()
	if url == "" {
		writeError(w, r, fmt.Errorf("%w: provider returned no audio", errUpstreamFailed))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"audio_url": url})
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	if s.speaker == nil {
		writeError(w, r, fmt.Errorf("%w: text to speech", errNotConfigured))
		return
	}
	voices, err := s.speaker.Voices(r.Context())
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %w", errUpstreamFailed, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": voices})
}

// handleTranscribe transcribes an uploaded recording. Form fields:
// "file" (required), "language_code" and "model_id".
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil {
		writeError(w, r, fmt.Errorf("%w: speech to text", errNotConfigured))
		return
	}
	audio, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	opts := stt.Options{
		Language: strings.TrimSpace(r.FormValue("language_code")),
		Model:    strings.TrimSpace(r.FormValue("model_id")),
	}
	if opts.Language == "" {
		opts.Language = s.language
	}

	tr, err := s.transcriber.Transcribe(r.Context(), audio.Uploadable(), opts)
	if err != nil {
		if errors.Is(err, stt.ErrEmptyAudio) {
			writeError(w, r, err)
			return
		}
		writeError(w, r, fmt.Errorf("%w: %w", errUpstreamFailed, err))
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// readUpload parses a multipart form and returns its "file" part.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (stt.Audio, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return stt.Audio{}, fmt.Errorf("%w: multipart form: %w", errBadRequest, err)
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return stt.Audio{}, fmt.Errorf("%w: no file uploaded", errBadRequest)
		}
		return stt.Audio{}, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return stt.Audio{}, fmt.Errorf("%w: read upload: %w", errBadRequest, err)
	}
	if len(data) == 0 {
		return stt.Audio{}, stt.ErrEmptyAudio
	}
	return stt.Audio{Data: data, MIMEType: uploadType(hdr), Filename: hdr.Filename}, nil
}

func uploadType(hdr *multipart.FileHeader) string {
	ct := hdr.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		return "audio/webm"
	}
	mt, _, _ := strings.Cut(ct, ";")
	return strings.TrimSpace(mt)
}
