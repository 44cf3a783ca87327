// Package app wires all phonoplay subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithSnapshotStore,
// WithImageStore, WithListener, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/phonoplay/internal/catalog"
	"github.com/MrWong99/phonoplay/internal/config"
	"github.com/MrWong99/phonoplay/internal/health"
	"github.com/MrWong99/phonoplay/internal/imagestore"
	"github.com/MrWong99/phonoplay/internal/narration"
	"github.com/MrWong99/phonoplay/internal/observe"
	"github.com/MrWong99/phonoplay/internal/phonics"
	"github.com/MrWong99/phonoplay/internal/session"
	"github.com/MrWong99/phonoplay/internal/web"
)

const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes and serves the phonoplay HTTP API.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	catalog  *catalog.Accessor
	words    *catalog.Memory
	pg       *catalog.Postgres
	llmWords *catalog.LLMSource
	store    session.SnapshotStore
	sessions *session.Manager
	narrator *narration.Narrator
	images   imagestore.Store
	health   *health.Handler
	web      *web.Server
	server   *http.Server
	listener net.Listener

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithSnapshotStore injects a snapshot store instead of creating one from config.
func WithSnapshotStore(s session.SnapshotStore) Option {
	return func(a *App) { a.store = s }
}

// WithImageStore injects an image store instead of creating one from config.
func WithImageStore(s imagestore.Store) Option {
	return func(a *App) { a.images = s }
}

// WithListener makes Run serve on l instead of listening on
// server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from [BuildProviders]; any of them may be nil.
//
// New performs all initialisation synchronously: seed loading, database
// connection and migration, image store setup, and HTTP handler assembly.
// On failure everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.init(ctx); err != nil {
		a.runClosers()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	// ── 1. Word catalog ─────────────────────────────────────────────────
	if err := a.initCatalog(ctx); err != nil {
		return fmt.Errorf("app: init catalog: %w", err)
	}

	// ── 2. Snapshot store ───────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return fmt.Errorf("app: init snapshot store: %w", err)
	}

	// ── 3. Narration ────────────────────────────────────────────────────
	a.initNarration()

	// ── 4. Images ───────────────────────────────────────────────────────
	if err := a.initImages(ctx); err != nil {
		return fmt.Errorf("app: init images: %w", err)
	}

	// ── 5. Sessions ─────────────────────────────────────────────────────
	a.initSessions()

	// ── 6. Health + HTTP ────────────────────────────────────────────────
	a.health = health.New(a.checkers()...)
	a.initWeb()
	return nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initCatalog loads the seed words and builds the configured sources.
func (a *App) initCatalog(ctx context.Context) error {
	cc := a.cfg.Catalog

	seed := catalog.DefaultSeed
	if cc.SeedFile != "" {
		words, err := catalog.LoadSeedFile(cc.SeedFile)
		if err != nil {
			return err
		}
		seed = words
		slog.Info("loaded word seed", "path", cc.SeedFile, "count", len(words))
	}
	a.words = catalog.NewMemory(seed)

	sources := map[string]catalog.Source{string(config.SourceStatic): a.words}
	var (
		lookup    catalog.Lookup    = a.words
		inventory catalog.Inventory = a.words
	)

	if cc.PostgresDSN != "" {
		pg, err := catalog.OpenPostgres(ctx, cc.PostgresDSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		if cc.SeedFile != "" {
			n, err := pg.Import(ctx, seed)
			if err != nil {
				return err
			}
			slog.Info("imported seed words into postgres", "count", n)
		}
		a.pg = pg
		sources[string(config.SourcePostgres)] = pg
		inventory = pg
		if cc.Lookup == config.SourcePostgres {
			lookup = pg
		}
	}

	if a.providers.LLM != nil {
		a.llmWords = catalog.NewLLMSource(a.providers.LLM, lookup)
		sources[string(config.SourceLLM)] = a.llmWords
	}

	acc, err := catalog.NewAccessor(string(cc.Source), sources,
		catalog.WithInventory(inventory),
		catalog.WithDefaultLimit(cc.Limit),
		catalog.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.catalog = acc
	slog.Info("word catalog ready", "default", acc.Default(), "sources", acc.Sources())
	return nil
}

// initStore sets up the snapshot store unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	sc := a.cfg.Session
	if sc.Store != config.StorePostgres {
		a.store = session.NewMemoryStore()
		return nil
	}
	ps, err := session.OpenPostgresStore(ctx, sc.PostgresDSN)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error { ps.Close(); return nil })
	if err := ps.Migrate(ctx); err != nil {
		return err
	}
	a.store = ps
	return nil
}

// initNarration wraps the TTS provider in a caching narrator.
func (a *App) initNarration() {
	if a.providers.TTS == nil {
		return
	}
	nc := a.cfg.Narration
	opts := []narration.Option{
		narration.WithVoice(nc.VoiceID),
		narration.WithMetrics(a.metrics),
	}
	if nc.CacheSize != nil {
		opts = append(opts, narration.WithCache(*nc.CacheSize, nc.CacheTTL))
	}
	a.narrator = narration.New(a.providers.TTS, opts...)
}

// initImages opens the configured image store unless one was injected.
func (a *App) initImages(ctx context.Context) error {
	if a.images != nil {
		return nil
	}
	s, closeFn, err := OpenImageStore(ctx, a.cfg.Images)
	if err != nil {
		return err
	}
	if closeFn != nil {
		a.closers = append(a.closers, closeFn)
	}
	a.images = s
	return nil
}

// OpenImageStore opens the image backend described by ic. The returned close
// function is nil when the backend holds no resources.
func OpenImageStore(ctx context.Context, ic config.ImagesConfig) (imagestore.Store, func() error, error) {
	switch ic.Backend {
	case config.ImagesDir:
		return imagestore.NewDir(ic.Dir, ic.PublicBaseURL), nil, nil
	case config.ImagesGCS:
		gcs, err := imagestore.NewGCS(ctx, ic.Bucket,
			imagestore.WithCredentialsFile(ic.CredentialsFile),
			imagestore.WithPublicBaseURL(ic.PublicBaseURL),
		)
		if err != nil {
			return nil, nil, err
		}
		return gcs, gcs.Close, nil
	default:
		return imagestore.None{}, nil, nil
	}
}

// initSessions creates the session manager with the per-session options
// derived from config and the available providers.
func (a *App) initSessions() {
	sc := a.cfg.Session
	sessOpts := []session.Option{
		session.WithRecordingTimeout(sc.RecordingTimeout),
		session.WithWindow(sc.PerformanceWindow),
		session.WithLanguage(sc.Language),
		session.WithSelector(phonics.NewSelector()),
	}
	if a.providers.STT != nil {
		sessOpts = append(sessOpts, session.WithTranscriber(a.providers.STT))
	}
	if a.narrator != nil {
		sessOpts = append(sessOpts, session.WithNarrator(a.narrator, a.narrator.DefaultVoice()))
	}

	a.sessions = session.NewManager(a.catalog, a.store,
		session.WithSessionOptions(sessOpts...),
		session.WithMaxWords(sc.MaxWords),
		session.WithMaxPhonemes(sc.MaxPhonemes),
		session.WithManagerMetrics(a.metrics),
	)
	a.closers = append(a.closers, func() error { a.sessions.Close(); return nil })
}

// checkers returns a readiness check for every remote dependency in use.
func (a *App) checkers() []health.Checker {
	var cs []health.Checker
	if a.pg != nil {
		cs = append(cs, health.Checker{Name: "catalog", Check: a.pg.Ping})
	}
	if ps, ok := a.store.(*session.PostgresStore); ok {
		cs = append(cs, health.Checker{Name: "snapshots", Check: ps.Ping})
	}
	if gcs, ok := a.images.(*imagestore.GCS); ok {
		cs = append(cs, health.Checker{Name: "images", Check: gcs.Ping})
	}
	for kind, p := range map[string]any{"llm": a.providers.LLM, "stt": a.providers.STT, "tts": a.providers.TTS} {
		if g, ok := p.(interface{ Healthy() bool }); ok {
			cs = append(cs, health.Checker{Name: kind, Check: failoverCheck(kind, g)})
		}
	}
	return cs
}

func failoverCheck(kind string, g interface{ Healthy() bool }) func(context.Context) error {
	return func(context.Context) error {
		if !g.Healthy() {
			return fmt.Errorf("every %s provider has an open circuit breaker", kind)
		}
		return nil
	}
}

// initWeb builds the HTTP handler and server.
func (a *App) initWeb() {
	sc := a.cfg.Server
	opts := []web.Option{
		web.WithImages(a.images),
		web.WithHealth(a.health),
		web.WithMetrics(a.metrics),
		web.WithLanguage(a.cfg.Session.Language),
		web.WithMaxPhonemes(a.cfg.Session.MaxPhonemes),
		web.WithPerformanceWindow(a.cfg.Session.PerformanceWindow),
	}
	if a.narrator != nil {
		opts = append(opts, web.WithSpeaker(a.narrator))
	}
	if a.providers.STT != nil {
		opts = append(opts, web.WithTranscriber(a.providers.STT))
	}
	if a.llmWords != nil {
		opts = append(opts, web.WithLLMWords(a.llmWords))
	}
	if sc.MaxUploadBytes > 0 {
		opts = append(opts, web.WithMaxUploadBytes(sc.MaxUploadBytes))
	}
	if len(sc.AllowedOrigins) > 0 {
		opts = append(opts, web.WithOriginPatterns(sc.AllowedOrigins...))
	}

	a.web = web.New(a.catalog, a.sessions, opts...)
	a.server = &http.Server{
		Addr:              sc.ListenAddr,
		Handler:           a.web.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Catalog returns the word catalog.
func (a *App) Catalog() *catalog.Accessor { return a.catalog }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or the server fails.
// Cancelling ctx shuts the server down gracefully within
// server.shutdown_timeout; a clean shutdown returns nil.
func (a *App) Run(ctx context.Context) error {
	l := a.listener
	if l == nil {
		var err error
		l, err = net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.server.Addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", l.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(l, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(l)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes the HTTP server and all subsystems in reverse-init order.
// It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers releases whatever a failed New opened.
func (a *App) runClosers() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
}
