package imagestore_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"

	"github.com/MrWong99/phonoplay/internal/imagestore"
	"github.com/MrWong99/phonoplay/internal/phonics"
)

func TestImageURL(t *testing.T) {
	t.Parallel()

	dir := imagestore.NewDir(t.TempDir(), "")
	tests := []struct {
		name  string
		store imagestore.Store
		ref   string
		want  string
	}{
		{name: "relative", store: dir, ref: "words/cat.webp", want: "/images/words/cat.webp"},
		{name: "leading slash", store: dir, ref: "/words/cat.webp", want: "/images/words/cat.webp"},
		{name: "dot segments", store: dir, ref: "words/../../etc/passwd", want: "/images/etc/passwd"},
		{name: "absolute url kept", store: dir, ref: "https://cdn.example/cat.png", want: "https://cdn.example/cat.png"},
		{name: "no image", store: dir, ref: "", want: ""},
		{name: "none store", store: imagestore.None{}, ref: "words/cat.webp", want: ""},
		{name: "nil store", store: nil, ref: "words/cat.webp", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := imagestore.ImageURL(tt.store, phonics.Word{Text: "cat", ImagePath: tt.ref})
			if got != tt.want {
				t.Errorf("ImageURL(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestContentType(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"cat.webp":  "image/webp",
		"CAT.PNG":   "image/png",
		"a/b.jpeg":  "image/jpeg",
		"notes.txt": "",
		"noext":     "",
	}
	for name, want := range tests {
		if got := imagestore.ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestNone(t *testing.T) {
	t.Parallel()

	var s imagestore.None
	if _, err := s.List(context.Background(), ""); !errors.Is(err, imagestore.ErrNotConfigured) {
		t.Errorf("List err = %v", err)
	}
	if err := s.Upload(context.Background(), "a.webp", strings.NewReader("x"), ""); !errors.Is(err, imagestore.ErrNotConfigured) {
		t.Errorf("Upload err = %v", err)
	}
}

func TestDir_UploadListServe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := imagestore.NewDir(t.TempDir(), "/pics/")

	if err := d.Upload(ctx, "words/cat.webp", strings.NewReader("meow"), "image/webp"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := d.Upload(ctx, "other/sun.png", strings.NewReader("sunny"), "image/png"); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	objs, err := d.List(ctx, "words/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 1 || objs[0].Name != "words/cat.webp" || objs[0].Size != 4 || objs[0].ContentType != "image/webp" {
		t.Errorf("List(words/) = %+v", objs)
	}
	all, _ := d.List(ctx, "")
	if len(all) != 2 || all[0].Name != "other/sun.png" {
		t.Errorf("List() = %+v, want two objects sorted by name", all)
	}

	if got := d.URL("words/cat.webp"); got != "/pics/words/cat.webp" {
		t.Errorf("URL = %q", got)
	}

	srv := httptest.NewServer(http.StripPrefix("/pics", d.Handler()))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/pics/words/cat.webp")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "meow" {
		t.Errorf("GET = %d %q", resp.StatusCode, body)
	}
}

func TestDir_UploadRejectsEmptyName(t *testing.T) {
	t.Parallel()

	d := imagestore.NewDir(t.TempDir(), "")
	if err := d.Upload(context.Background(), "/", strings.NewReader("x"), ""); err == nil {
		t.Error("Upload with empty name succeeded")
	}
}

// recordingStore captures uploads for UploadDir tests.
type recordingStore struct {
	imagestore.None

	mu      sync.Mutex
	uploads map[string]string
	err     error
}

func (r *recordingStore) Upload(_ context.Context, name string, body io.Reader, contentType string) error {
	if r.err != nil {
		return r.err
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uploads == nil {
		r.uploads = make(map[string]string)
	}
	r.uploads[name] = contentType + ":" + string(b)
	return nil
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestUploadDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "cat.webp", "c")
	writeFile(t, root, "animals/dog.png", "d")
	writeFile(t, root, "README.md", "skip me")

	rs := &recordingStore{}
	n, err := imagestore.UploadDir(context.Background(), rs, root, "words", 2)
	if err != nil {
		t.Fatalf("UploadDir: %v", err)
	}
	if n != 2 {
		t.Errorf("uploaded %d files, want 2", n)
	}
	want := map[string]string{
		"words/cat.webp":        "image/webp:c",
		"words/animals/dog.png": "image/png:d",
	}
	for name, body := range want {
		if rs.uploads[name] != body {
			t.Errorf("upload %s = %q, want %q", name, rs.uploads[name], body)
		}
	}
	if len(rs.uploads) != len(want) {
		t.Errorf("uploads = %v", rs.uploads)
	}
}

func TestUploadDir_StopsOnError(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "cat.webp", "c")

	boom := errors.New("quota exceeded")
	n, err := imagestore.UploadDir(context.Background(), &recordingStore{err: boom}, root, "", 0)
	if !errors.Is(err, boom) {
		t.Errorf("UploadDir err = %v, want %v", err, boom)
	}
	if n != 0 {
		t.Errorf("uploaded = %d, want 0", n)
	}
}

func TestUploadDir_ToDirStore(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, src, "sun.webp", "s")
	dst := imagestore.NewDir(t.TempDir(), "")

	if _, err := imagestore.UploadDir(context.Background(), dst, src, "words", 0); err != nil {
		t.Fatalf("UploadDir: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dst.Root(), "words", "sun.webp"))
	if err != nil || string(got) != "s" {
		t.Errorf("copied file = %q, %v", got, err)
	}
}

func TestGCS_URL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g, err := imagestore.NewGCS(ctx, "phonoplay-words", imagestore.WithClientOptions(option.WithoutAuthentication()))
	if err != nil {
		t.Fatalf("NewGCS: %v", err)
	}
	defer g.Close()
	if got := g.URL("words/cat.webp"); got != "https://storage.googleapis.com/phonoplay-words/words/cat.webp" {
		t.Errorf("URL = %q", got)
	}

	cdn, err := imagestore.NewGCS(ctx, "phonoplay-words",
		imagestore.WithClientOptions(option.WithoutAuthentication()),
		imagestore.WithPublicBaseURL("https://cdn.example/"))
	if err != nil {
		t.Fatalf("NewGCS: %v", err)
	}
	defer cdn.Close()
	if got := cdn.URL("/words/cat.webp"); got != "https://cdn.example/words/cat.webp" {
		t.Errorf("URL with CDN = %q", got)
	}

	if _, err := imagestore.NewGCS(ctx, ""); err == nil {
		t.Error("NewGCS without bucket succeeded")
	}
}
