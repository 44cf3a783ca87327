package imagestore

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultDirBaseURL is where [Dir.Handler] is mounted by the web server.
const DefaultDirBaseURL = "/images"

// Dir is a [Store] backed by a local directory.
type Dir struct {
	root string
	base string
}

var _ Store = (*Dir)(nil)

// NewDir returns a store rooted at root whose URLs start with baseURL. An
// empty baseURL means [DefaultDirBaseURL].
func NewDir(root, baseURL string) *Dir {
	if baseURL == "" {
		baseURL = DefaultDirBaseURL
	}
	return &Dir{root: root, base: baseURL}
}

// Root returns the directory the store serves.
func (d *Dir) Root() string { return d.root }

// URL implements [Store].
func (d *Dir) URL(name string) string { return joinURL(d.base, name) }

// Handler serves the directory. Mount it under the base URL with the prefix
// stripped.
func (d *Dir) Handler() http.Handler {
	return http.FileServer(http.Dir(d.root))
}

// List implements [Store].
func (d *Dir) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	err := filepath.WalkDir(d.root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		out = append(out, Object{
			Name:        name,
			Size:        info.Size(),
			ContentType: ContentType(name),
			Updated:     info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("imagestore: dir: list %s: %w", d.root, err)
	}
	slices.SortFunc(out, func(a, b Object) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Upload implements [Store]. The content type is implied by the file name.
func (d *Dir) Upload(ctx context.Context, name string, r io.Reader, _ string) error {
	name = CleanName(name)
	if name == "" {
		return fmt.Errorf("imagestore: dir: empty object name")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := filepath.Join(d.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("imagestore: dir: create %s: %w", filepath.Dir(dst), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("imagestore: dir: upload %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("imagestore: dir: upload %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("imagestore: dir: upload %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("imagestore: dir: upload %s: %w", name, err)
	}
	return nil
}
