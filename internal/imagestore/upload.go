package imagestore

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultUploadConcurrency bounds parallel uploads in [UploadDir].
const DefaultUploadConcurrency = 8

// UploadDir uploads every picture below dir to s, keeping relative paths and
// prepending prefix. Files that are not images are skipped. It returns the
// number of files uploaded and stops at the first error.
func UploadDir(ctx context.Context, s Store, dir, prefix string, concurrency int) (int, error) {
	if concurrency <= 0 {
		concurrency = DefaultUploadConcurrency
	}

	var files []string
	err := filepath.WalkDir(dir, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !e.IsDir() && ContentType(p) != "" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("imagestore: scan %s: %w", dir, err)
	}

	var uploaded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, p := range files {
		g.Go(func() error {
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			name := CleanName(path.Join(prefix, filepath.ToSlash(rel)))

			f, err := os.Open(p)
			if err != nil {
				return fmt.Errorf("imagestore: open %s: %w", p, err)
			}
			defer f.Close()

			if err := s.Upload(gctx, name, f, ContentType(p)); err != nil {
				return err
			}
			uploaded.Add(1)
			slog.Debug("image uploaded", "name", name)
			return nil
		})
	}
	err = g.Wait()
	return int(uploaded.Load()), err
}
