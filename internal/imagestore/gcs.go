package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	defaultGCSBaseURL   = "https://storage.googleapis.com"
	defaultCacheControl = "public, max-age=86400"
)

// GCSOption configures a [GCS] store.
type GCSOption func(*gcsConfig)

type gcsConfig struct {
	credentialsFile string
	publicBaseURL   string
	clientOpts      []option.ClientOption
}

// WithCredentialsFile authenticates with a service account key file instead
// of application default credentials.
func WithCredentialsFile(path string) GCSOption {
	return func(c *gcsConfig) { c.credentialsFile = path }
}

// WithPublicBaseURL overrides the URL prefix of served objects, for example
// a CDN in front of the bucket. The default is
// https://storage.googleapis.com/<bucket>.
func WithPublicBaseURL(u string) GCSOption {
	return func(c *gcsConfig) { c.publicBaseURL = u }
}

// WithClientOptions passes extra options to the storage client.
func WithClientOptions(opts ...option.ClientOption) GCSOption {
	return func(c *gcsConfig) { c.clientOpts = append(c.clientOpts, opts...) }
}

// GCS is a [Store] backed by a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	base   string
}

var _ Store = (*GCS)(nil)

// NewGCS connects to bucket. It does not check that the bucket exists; see
// [GCS.Ensure].
func NewGCS(ctx context.Context, bucket string, opts ...GCSOption) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("imagestore: gcs: bucket name is required")
	}
	var cfg gcsConfig
	for _, o := range opts {
		o(&cfg)
	}
	clientOpts := slices.Clone(cfg.clientOpts)
	if cfg.credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.credentialsFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("imagestore: gcs: new client: %w", err)
	}

	base := cfg.publicBaseURL
	if base == "" {
		base = defaultGCSBaseURL + "/" + bucket
	}
	return &GCS{
		client: client,
		bucket: client.Bucket(bucket),
		name:   bucket,
		base:   base,
	}, nil
}

// Bucket returns the bucket name.
func (g *GCS) Bucket() string { return g.name }

// URL implements [Store].
func (g *GCS) URL(name string) string { return joinURL(g.base, name) }

// Ensure creates the bucket in projectID when it does not exist yet. It
// reports whether the bucket was created.
func (g *GCS) Ensure(ctx context.Context, projectID string) (bool, error) {
	_, err := g.bucket.Attrs(ctx)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return false, fmt.Errorf("imagestore: gcs: bucket %s: %w", g.name, err)
	}
	if projectID == "" {
		return false, fmt.Errorf("imagestore: gcs: bucket %s does not exist and no project id is set", g.name)
	}
	if err := g.bucket.Create(ctx, projectID, nil); err != nil {
		return false, fmt.Errorf("imagestore: gcs: create bucket %s: %w", g.name, err)
	}
	slog.Info("image bucket created", "bucket", g.name, "project_id", projectID)
	return true, nil
}

// Ping checks that the bucket is reachable.
func (g *GCS) Ping(ctx context.Context) error {
	if _, err := g.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("imagestore: gcs: bucket %s: %w", g.name, err)
	}
	return nil
}

// List implements [Store].
func (g *GCS) List(ctx context.Context, prefix string) ([]Object, error) {
	query := &storage.Query{
		Prefix:     prefix,
		Projection: storage.ProjectionNoACL,
	}
	var out []Object
	it := g.bucket.Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("imagestore: gcs: list %s/%s: %w", g.name, prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		out = append(out, Object{
			Name:        attrs.Name,
			Size:        attrs.Size,
			ContentType: attrs.ContentType,
			Updated:     attrs.Updated,
		})
	}
	return out, nil
}

// Upload implements [Store].
func (g *GCS) Upload(ctx context.Context, name string, r io.Reader, contentType string) error {
	name = CleanName(name)
	if contentType == "" {
		contentType = ContentType(name)
	}
	w := g.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = defaultCacheControl
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("imagestore: gcs: upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("imagestore: gcs: upload %s: %w", name, err)
	}
	return nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}
