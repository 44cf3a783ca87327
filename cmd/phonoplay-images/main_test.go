package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/phonoplay/internal/config"
	"github.com/MrWong99/phonoplay/internal/imagestore"
)

func TestDispatch_UploadThenList(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "cat.png"), []byte("png"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "notes.txt"), []byte("skip me"), 0o600); err != nil {
		t.Fatal(err)
	}

	store := imagestore.NewDir(t.TempDir(), "")
	ic := config.ImagesConfig{Backend: config.ImagesDir}
	ctx := context.Background()

	var out bytes.Buffer
	if err := dispatch(ctx, "upload", []string{"-prefix", "words", src}, store, ic, &out); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if got := out.String(); got != "uploaded 1 images\n" {
		t.Errorf("upload output = %q", got)
	}

	out.Reset()
	if err := dispatch(ctx, "list", []string{"words/"}, store, ic, &out); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "words/cat.png") {
		t.Errorf("list output missing words/cat.png:\n%s", out.String())
	}
	if strings.Contains(out.String(), "notes.txt") {
		t.Errorf("list output contains a non-image file:\n%s", out.String())
	}
}

func TestDispatch_URL(t *testing.T) {
	t.Parallel()

	store := imagestore.NewDir(t.TempDir(), "")
	var out bytes.Buffer
	if err := dispatch(context.Background(), "url", []string{"/words/cat.png", "../dog.png"}, store, config.ImagesConfig{}, &out); err != nil {
		t.Fatalf("url: %v", err)
	}
	want := "/images/words/cat.png\n/images/dog.png\n"
	if out.String() != want {
		t.Errorf("url output = %q, want %q", out.String(), want)
	}

	if err := dispatch(context.Background(), "url", nil, store, config.ImagesConfig{}, &out); !errors.Is(err, errUsage) {
		t.Errorf("url without names = %v, want errUsage", err)
	}
}

func TestDispatch_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var out bytes.Buffer

	if err := dispatch(ctx, "ensure", nil, imagestore.None{}, config.ImagesConfig{Backend: config.ImagesNone}, &out); err == nil {
		t.Error("ensure without a bucket backend: want error")
	}
	if err := dispatch(ctx, "list", nil, imagestore.None{}, config.ImagesConfig{}, &out); !errors.Is(err, imagestore.ErrNotConfigured) {
		t.Errorf("list on None = %v, want ErrNotConfigured", err)
	}
	if err := dispatch(ctx, "frobnicate", nil, imagestore.None{}, config.ImagesConfig{}, &out); err == nil {
		t.Error("unknown command: want error")
	}
}

func TestRun_Usage(t *testing.T) {
	t.Parallel()

	if code := run(nil, &bytes.Buffer{}); code != 2 {
		t.Errorf("run() without a command = %d, want 2", code)
	}
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	if code := run([]string{"-config", missing, "list"}, &bytes.Buffer{}); code != 1 {
		t.Errorf("run() with a missing config = %d, want 1", code)
	}
}
