// Package catalog fetches candidate words for a practice run.
//
// A [Source] returns words for a phoneme [Query]. Three interchangeable
// backends exist: [Memory] (a static seed list), [Postgres] (the words table)
// and [LLMSource] (a language model suggests words, a [Lookup] keeps only the
// ones the catalog knows). The [Accessor] picks a source by name, turns any
// backend failure into [ErrUnavailable] and re-applies the phoneme policy to
// whatever came back.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/phonoplay/internal/observe"
	"github.com/MrWong99/phonoplay/internal/phonics"
)

// DefaultLimit caps the number of words a query returns when
// [Query.Limit] is not set.
const DefaultLimit = 20

var (
	// ErrUnavailable wraps every backend failure. Callers treat it as
	// "the catalog could not be reached", never as "no words matched".
	ErrUnavailable = errors.New("catalog: unavailable")

	// ErrInvalidQuery is returned when a query cannot be answered by the
	// chosen source at all.
	ErrInvalidQuery = errors.New("catalog: invalid query")

	// ErrUnknownSource is returned when a query names a source that is not
	// configured.
	ErrUnknownSource = errors.New("catalog: unknown source")
)

// Query describes the words a caller wants.
type Query struct {
	// Phonemes is the learner's selection. Empty means no phoneme filter.
	Phonemes []string
	Policy   phonics.Policy
	// Limit caps the result size. Zero means [DefaultLimit].
	Limit int
	// Categories and Subcategories restrict results when non-empty.
	// Comparison is case-insensitive.
	Categories    []string
	Subcategories []string
	// Model overrides the language model used by [LLMSource].
	Model string
}

// normalized returns a copy with canonical phonemes and upper-cased category
// filters.
func (q Query) normalized() Query {
	q.Phonemes = phonics.NormalizeSelection(q.Phonemes)
	q.Categories = upperAll(q.Categories)
	q.Subcategories = upperAll(q.Subcategories)
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	return q
}

// Source returns candidate words for a query.
type Source interface {
	Candidates(ctx context.Context, q Query) ([]phonics.Word, error)
}

// Lookup resolves written words to catalog entries. Words the catalog does
// not know are left out of the result.
type Lookup interface {
	Lookup(ctx context.Context, words []string) ([]phonics.Word, error)
}

// Inventory lists the phonemes present in a catalog.
type Inventory interface {
	Phonemes(ctx context.Context) ([]string, error)
}

// AccessorOption configures an [Accessor].
type AccessorOption func(*Accessor)

// WithInventory sets the backend used by [Accessor.Phonemes].
func WithInventory(inv Inventory) AccessorOption {
	return func(a *Accessor) { a.inventory = inv }
}

// WithDefaultLimit caps queries that do not set [Query.Limit]. Default:
// [DefaultLimit].
func WithDefaultLimit(n int) AccessorOption {
	return func(a *Accessor) {
		if n > 0 {
			a.limit = n
		}
	}
}

// WithMetrics records fetch latency per source.
func WithMetrics(m *observe.Metrics) AccessorOption {
	return func(a *Accessor) { a.metrics = m }
}

// Accessor routes queries to named sources.
type Accessor struct {
	def       string
	sources   map[string]Source
	inventory Inventory
	limit     int
	metrics   *observe.Metrics
}

// NewAccessor creates an [Accessor] whose default source is def. def must be
// one of the keys of sources.
func NewAccessor(def string, sources map[string]Source, opts ...AccessorOption) (*Accessor, error) {
	if len(sources) == 0 {
		return nil, errors.New("catalog: at least one source is required")
	}
	if _, ok := sources[def]; !ok {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownSource, def)
	}
	a := &Accessor{def: def, sources: make(map[string]Source, len(sources)), limit: DefaultLimit}
	for name, s := range sources {
		a.sources[name] = s
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Default returns the name of the default source.
func (a *Accessor) Default() string { return a.def }

// Sources returns the configured source names in sorted order.
func (a *Accessor) Sources() []string {
	names := make([]string, 0, len(a.sources))
	for n := range a.sources {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// FetchCandidates asks the named source (empty means the default) for words
// and filters them with [phonics.Match] under q.Policy. A source failure is
// returned wrapped in [ErrUnavailable]. An empty result is not an error.
func (a *Accessor) FetchCandidates(ctx context.Context, source string, q Query) (_ []phonics.Word, err error) {
	if source == "" {
		source = a.def
	}
	src, ok := a.sources[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	if q.Limit <= 0 {
		q.Limit = a.limit
	}
	q = q.normalized()

	ctx, span := observe.StartSpan(ctx, observe.SpanCatalogFetch, trace.WithAttributes(
		attribute.String("source", source),
		attribute.StringSlice("phonemes", q.Phonemes),
	))
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	words, err := src.Candidates(ctx, q)
	if a.metrics != nil {
		a.metrics.RecordCatalogFetch(ctx, source, time.Since(start))
	}
	if err != nil {
		if errors.Is(err, ErrInvalidQuery) {
			return nil, err
		}
		observe.Logger(ctx).Warn("catalog source failed", "source", source, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, source, err)
	}

	words = phonics.Match(words, q.Phonemes, q.Policy)
	if len(words) > q.Limit {
		words = words[:q.Limit]
	}
	observe.Logger(ctx).Debug("catalog candidates fetched",
		"source", source,
		"phonemes", q.Phonemes,
		"policy", q.Policy.String(),
		"count", len(words))
	return words, nil
}

// Phonemes returns the phoneme inventory for the selection screen. When no
// inventory is configured, the backend fails or it reports nothing,
// [phonics.DefaultPhonemes] is returned.
func (a *Accessor) Phonemes(ctx context.Context) []string {
	if a.inventory != nil {
		ps, err := a.inventory.Phonemes(ctx)
		if err == nil && len(ps) > 0 {
			return ps
		}
		if err != nil {
			slog.Warn("catalog phoneme inventory failed, using defaults", "error", err)
		}
	}
	return slices.Clone(phonics.DefaultPhonemes)
}

func upperAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func matchesCategory(w phonics.Word, q Query) bool {
	if len(q.Categories) > 0 && !slices.Contains(q.Categories, strings.ToUpper(w.Category)) {
		return false
	}
	if len(q.Subcategories) > 0 && !slices.Contains(q.Subcategories, strings.ToUpper(w.Subcategory)) {
		return false
	}
	return true
}
