package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"elevenlabs", "openai", "whisper"},
	"tts": {"elevenlabs", "smallest"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}

	// Providers
	errs = append(errs, validateProvider("llm", cfg.Providers.LLM)...)
	errs = append(errs, validateProvider("stt", cfg.Providers.STT)...)
	errs = append(errs, validateProvider("tts", cfg.Providers.TTS)...)
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; spoken attempts cannot be graded")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no TTS provider configured; words will not be read aloud")
	}

	// Catalog
	cat := cfg.Catalog
	if !cat.Source.IsValid() {
		errs = append(errs, fmt.Errorf("catalog.source %q is invalid; valid values: static, postgres, llm", cat.Source))
	}
	if cat.Source == SourcePostgres && cat.PostgresDSN == "" {
		errs = append(errs, errors.New("catalog.postgres_dsn is required when catalog.source is postgres"))
	}
	if cat.Source == SourceLLM && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("catalog.source llm requires providers.llm"))
	}
	if cat.Lookup != SourceStatic && cat.Lookup != SourcePostgres {
		errs = append(errs, fmt.Errorf("catalog.lookup %q is invalid; valid values: static, postgres", cat.Lookup))
	}
	if cat.Lookup == SourcePostgres && cat.PostgresDSN == "" {
		errs = append(errs, errors.New("catalog.postgres_dsn is required when catalog.lookup is postgres"))
	}
	if cat.Limit < 0 {
		errs = append(errs, fmt.Errorf("catalog.limit %d must not be negative", cat.Limit))
	}

	// Session
	s := cfg.Session
	if s.RecordingTimeout <= 0 {
		errs = append(errs, fmt.Errorf("session.recording_timeout %s must be positive", s.RecordingTimeout))
	}
	if s.PerformanceWindow <= 0 {
		errs = append(errs, fmt.Errorf("session.performance_window %d must be positive", s.PerformanceWindow))
	}
	if s.MaxWords < 0 {
		errs = append(errs, fmt.Errorf("session.max_words %d must not be negative", s.MaxWords))
	}
	if s.MaxPhonemes <= 0 {
		errs = append(errs, fmt.Errorf("session.max_phonemes %d must be positive", s.MaxPhonemes))
	}
	if !s.Store.IsValid() {
		errs = append(errs, fmt.Errorf("session.store %q is invalid; valid values: memory, postgres", s.Store))
	}
	if s.Store == StorePostgres && s.PostgresDSN == "" {
		errs = append(errs, errors.New("session.postgres_dsn is required when session.store is postgres"))
	}

	// Narration
	if n := cfg.Narration.CacheSize; n != nil && *n < 0 {
		errs = append(errs, fmt.Errorf("narration.cache_size %d must not be negative", *n))
	}
	if cfg.Narration.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("narration.cache_ttl %s must not be negative", cfg.Narration.CacheTTL))
	}

	// Images
	img := cfg.Images
	switch {
	case !img.Backend.IsValid():
		errs = append(errs, fmt.Errorf("images.backend %q is invalid; valid values: none, dir, gcs", img.Backend))
	case img.Backend == ImagesDir && img.Dir == "":
		errs = append(errs, errors.New("images.dir is required when images.backend is dir"))
	case img.Backend == ImagesGCS && img.Bucket == "":
		errs = append(errs, errors.New("images.bucket is required when images.backend is gcs"))
	}

	return errors.Join(errs...)
}

// validateProvider checks an entry and its fallbacks. Unknown names only
// warn so third-party factories can be registered.
func validateProvider(kind string, entry ProviderEntry) []error {
	var errs []error
	validateProviderName(kind, entry.Name)
	if entry.Name == "" && len(entry.Fallbacks) > 0 {
		errs = append(errs, fmt.Errorf("providers.%s.fallbacks require providers.%s.name", kind, kind))
	}
	for i, fb := range entry.Fallbacks {
		prefix := fmt.Sprintf("providers.%s.fallbacks[%d]", kind, i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s.fallbacks cannot be nested", prefix))
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// OptString returns the string option key from opts, or "" when it is
// missing or not a string.
func OptString(opts map[string]any, key string) string {
	if v, ok := opts[key].(string); ok {
		return v
	}
	return ""
}

// OptBool returns the boolean option key from opts and whether it was set.
func OptBool(opts map[string]any, key string) (value, ok bool) {
	value, ok = opts[key].(bool)
	return value, ok
}

// OptInt returns the integer option key from opts, or 0 when it is missing.
// YAML numbers decode as int; floats are truncated.
func OptInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
