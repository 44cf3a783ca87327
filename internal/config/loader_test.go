package config_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/phonoplay/internal/config"
)

func TestValidate_Rules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "postgres source needs dsn",
			yaml:    "catalog:\n  source: postgres\n",
			wantErr: "catalog.postgres_dsn is required when catalog.source is postgres",
		},
		{
			name:    "llm source needs llm provider",
			yaml:    "catalog:\n  source: llm\n",
			wantErr: "catalog.source llm requires providers.llm",
		},
		{
			name:    "postgres lookup needs dsn",
			yaml:    "catalog:\n  lookup: postgres\n",
			wantErr: "catalog.lookup is postgres",
		},
		{
			name:    "invalid lookup",
			yaml:    "catalog:\n  lookup: llm\n",
			wantErr: "catalog.lookup \"llm\" is invalid",
		},
		{
			name:    "postgres store needs dsn",
			yaml:    "session:\n  store: postgres\n",
			wantErr: "session.postgres_dsn is required",
		},
		{
			name:    "negative recording timeout",
			yaml:    "session:\n  recording_timeout: -1s\n",
			wantErr: "session.recording_timeout",
		},
		{
			name:    "negative max phonemes",
			yaml:    "session:\n  max_phonemes: -2\n",
			wantErr: "session.max_phonemes",
		},
		{
			name:    "negative cache size",
			yaml:    "narration:\n  cache_size: -1\n",
			wantErr: "narration.cache_size",
		},
		{
			name:    "dir backend needs dir",
			yaml:    "images:\n  backend: dir\n",
			wantErr: "images.dir is required",
		},
		{
			name:    "gcs backend needs bucket",
			yaml:    "images:\n  backend: gcs\n",
			wantErr: "images.bucket is required",
		},
		{
			name:    "tls needs both files",
			yaml:    "server:\n  tls:\n    cert_file: cert.pem\n",
			wantErr: "server.tls requires both",
		},
		{
			name:    "fallback needs name",
			yaml:    "providers:\n  stt:\n    name: elevenlabs\n    fallbacks:\n      - model: whisper-1\n",
			wantErr: "providers.stt.fallbacks[0].name is required",
		},
		{
			name:    "fallbacks without primary",
			yaml:    "providers:\n  tts:\n    fallbacks:\n      - name: smallest\n",
			wantErr: "providers.tts.fallbacks require providers.tts.name",
		},
		{
			name:    "nested fallbacks",
			yaml:    "providers:\n  llm:\n    name: openai\n    fallbacks:\n      - name: anthropic\n        fallbacks:\n          - name: groq\n",
			wantErr: "cannot be nested",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should contain %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_UnknownProviderNameOnlyWarns(t *testing.T) {
	t.Parallel()

	yaml := `
providers:
  llm:
    name: my-custom-llm
  tts:
    name: elevenlabs
    fallbacks:
      - name: my-custom-tts
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown provider names should not fail validation: %v", err)
	}
}

func TestValidate_LLMSourceWithProvider(t *testing.T) {
	t.Parallel()

	yaml := `
providers:
  llm:
    name: openai
catalog:
  source: llm
  seed_file: words.yaml
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Catalog.Lookup != config.SourceStatic {
		t.Errorf("catalog.lookup = %q, want static without a DSN", cfg.Catalog.Lookup)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "phonoplay.yaml")
	if err := os.WriteFile(path, []byte("images:\n  backend: dir\n  dir: ./images\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Images.Dir != "./images" {
		t.Errorf("images.dir = %q", cfg.Images.Dir)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error should wrap fs.ErrNotExist, got: %v", err)
	}
}
