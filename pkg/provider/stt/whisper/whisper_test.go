package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/phonoplay/pkg/provider/stt"
	"github.com/MrWong99/phonoplay/pkg/provider/stt/whisper"
)

type captured struct {
	mu       sync.Mutex
	language string
	model    string
	filename string
	header   []byte
}

// newMockServer creates a test server that answers POST /inference with
// responseText and records the multipart fields it received.
func newMockServer(t *testing.T, responseText string, c *captured) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, fh, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		if c != nil {
			c.mu.Lock()
			c.language = r.FormValue("language")
			c.model = r.FormValue("model")
			c.filename = fh.Filename
			if len(data) >= 4 {
				c.header = data[:4]
			}
			c.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_PCMIsWrappedAsWAV(t *testing.T) {
	t.Parallel()

	var c captured
	srv := newMockServer(t, " cat ", &c)
	defer srv.Close()

	p, err := whisper.New(srv.URL, whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Transcribe(context.Background(), stt.Audio{
		Data:       make([]byte, 3200),
		MIMEType:   stt.MIMEPCM,
		SampleRate: 16000,
	}, stt.Options{Language: "eng"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "cat" {
		t.Errorf("Text = %q, want %q", got.Text, "cat")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if string(c.header) != "RIFF" {
		t.Errorf("uploaded data does not start with RIFF: %q", c.header)
	}
	if c.filename != "audio.wav" {
		t.Errorf("filename = %q, want audio.wav", c.filename)
	}
	if c.language != "en" {
		t.Errorf("language = %q, want en (mapped from eng)", c.language)
	}
	if c.model != "base.en" {
		t.Errorf("model = %q, want base.en", c.model)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()

	p, _ := whisper.New("http://localhost:1")
	_, err := p.Transcribe(context.Background(), stt.Audio{}, stt.Options{})
	if !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("Transcribe(empty) error = %v, want ErrEmptyAudio", err)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte{1}, MIMEType: "audio/webm"}, stt.Options{}); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}
