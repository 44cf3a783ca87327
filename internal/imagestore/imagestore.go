// Package imagestore serves and manages the word pictures referenced by
// catalog entries. A [Store] turns an image path such as "words/cat.webp"
// into a URL a browser can load, lists what is stored and accepts uploads.
package imagestore

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/MrWong99/phonoplay/internal/phonics"
)

// ErrNotConfigured is returned by the [None] store for every write or list.
var ErrNotConfigured = errors.New("imagestore: no image backend configured")

// Object describes one stored image.
type Object struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
	Updated     time.Time `json:"updated"`
}

// Store is an image backend.
type Store interface {
	// URL returns the public URL for name, or "" when it cannot be served.
	URL(name string) string

	// List returns the objects whose name starts with prefix, sorted by name.
	List(ctx context.Context, prefix string) ([]Object, error)

	// Upload writes r under name.
	Upload(ctx context.Context, name string, r io.Reader, contentType string) error
}

// None is a [Store] for deployments without pictures.
type None struct{}

var _ Store = None{}

// URL implements [Store]. It always returns "".
func (None) URL(string) string { return "" }

// List implements [Store].
func (None) List(context.Context, string) ([]Object, error) { return nil, ErrNotConfigured }

// Upload implements [Store].
func (None) Upload(context.Context, string, io.Reader, string) error { return ErrNotConfigured }

// ImageURL resolves the picture of w. Absolute http(s) references are
// returned unchanged; relative paths go through s. A nil store is treated
// like [None].
func ImageURL(s Store, w phonics.Word) string {
	ref := strings.TrimSpace(w.ImagePath)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:") {
		return ref
	}
	if s == nil {
		return ""
	}
	return s.URL(CleanName(ref))
}

// CleanName normalizes an object name: forward slashes, no leading slash,
// no "." or ".." segments.
func CleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}

var imageTypes = map[string]string{
	".webp": "image/webp",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
}

// ContentType returns the MIME type for an image file name, or "" when the
// extension is not a supported picture format.
func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := imageTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return ""
}

// joinURL appends name to base with exactly one slash between them.
func joinURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + CleanName(name)
}
