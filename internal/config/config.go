// Package config provides the configuration schema, loader, and provider registry
// for the phonoplay server.
package config

import "time"

// LogLevel controls log verbosity for the phonoplay server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SourceKind names a word catalog source.
type SourceKind string

const (
	// SourceStatic serves words from a seed file or the built-in list.
	SourceStatic SourceKind = "static"

	// SourcePostgres queries the words table.
	SourcePostgres SourceKind = "postgres"

	// SourceLLM asks the language model for words and keeps the known ones.
	SourceLLM SourceKind = "llm"
)

// IsValid reports whether k is a recognised catalog source.
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceStatic, SourcePostgres, SourceLLM:
		return true
	}
	return false
}

// StoreKind selects where session snapshots are kept.
type StoreKind string

const (
	StoreMemory   StoreKind = "memory"
	StorePostgres StoreKind = "postgres"
)

// IsValid reports whether k is a recognised snapshot store.
func (k StoreKind) IsValid() bool {
	return k == StoreMemory || k == StorePostgres
}

// ImageBackend selects where word pictures are served from.
type ImageBackend string

const (
	ImagesNone ImageBackend = "none"
	ImagesDir  ImageBackend = "dir"
	ImagesGCS  ImageBackend = "gcs"
)

// IsValid reports whether b is a recognised image backend.
func (b ImageBackend) IsValid() bool {
	switch b {
	case ImagesNone, ImagesDir, ImagesGCS:
		return true
	}
	return false
}

// Config is the root configuration structure for phonoplay.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Session   SessionConfig   `yaml:"session"`
	Narration NarrationConfig `yaml:"narration"`
	Images    ImagesConfig    `yaml:"images"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on. Default: ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins lists host patterns accepted for websocket upgrades from
	// other origins, e.g. "localhost:5173".
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxUploadBytes caps uploaded recordings. Zero keeps the web default.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the provider for each external service. Each
// entry names a factory registered in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. For the openai
	// LLM this is how OpenRouter is reached.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields
	// above, e.g. "language" for speech-to-text.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider fails or its circuit
	// breaker is open. Fallback entries cannot nest further fallbacks.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// CatalogConfig configures the word catalog sources.
type CatalogConfig struct {
	// Source is the default source for requests that do not name one.
	// Default: static.
	Source SourceKind `yaml:"source"`

	// SeedFile is a YAML or JSON word list for the static source. Empty
	// uses the built-in list.
	SeedFile string `yaml:"seed_file"`

	// PostgresDSN enables the postgres source.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Limit caps the words returned per query. Default: 20.
	Limit int `yaml:"limit"`

	// Lookup selects the source the llm source checks suggestions against.
	// Default: postgres when a DSN is set, static otherwise.
	Lookup SourceKind `yaml:"lookup"`
}

// SessionConfig tunes practice sessions.
type SessionConfig struct {
	// RecordingTimeout auto-stops a recording. Default: 3s.
	RecordingTimeout time.Duration `yaml:"recording_timeout"`

	// PerformanceWindow is how many recent attempts drive word selection.
	// Default: 5.
	PerformanceWindow int `yaml:"performance_window"`

	// MaxWords caps the words in a session. Zero means no cap.
	MaxWords int `yaml:"max_words"`

	// MaxPhonemes caps the phoneme selection. Default: 5.
	MaxPhonemes int `yaml:"max_phonemes"`

	// Language is passed to speech-to-text. Default: "eng".
	Language string `yaml:"language"`

	// Store selects the snapshot store. Default: memory.
	Store StoreKind `yaml:"store"`

	// PostgresDSN for the postgres store. Defaults to catalog.postgres_dsn.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// NarrationConfig configures spoken words.
type NarrationConfig struct {
	// VoiceID is the default voice. Empty uses the provider default.
	VoiceID string `yaml:"voice_id"`

	// CacheSize is the number of synthesized clips kept. Zero disables the
	// cache. Default: 256.
	CacheSize *int `yaml:"cache_size"`

	// CacheTTL expires cached clips. Default: 1h.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// ImagesConfig configures where word pictures live.
type ImagesConfig struct {
	// Backend selects the image store. Default: none.
	Backend ImageBackend `yaml:"backend"`

	// Dir is the local directory for the dir backend.
	Dir string `yaml:"dir"`

	// Bucket, ProjectID and CredentialsFile configure the gcs backend.
	Bucket          string `yaml:"bucket"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`

	// PublicBaseURL overrides the URL prefix images are served under.
	PublicBaseURL string `yaml:"public_base_url"`
}

const (
	defaultListenAddr        = ":8080"
	defaultShutdownTimeout   = 15 * time.Second
	defaultCatalogLimit      = 20
	defaultRecordingTimeout  = 3 * time.Second
	defaultPerformanceWindow = 5
	defaultMaxPhonemes       = 5
	defaultLanguage          = "eng"
	defaultCacheSize         = 256
	defaultCacheTTL          = time.Hour
)

// ApplyDefaults fills zero values with their defaults. It is called by
// [LoadFromReader] before [Validate].
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaultShutdownTimeout
	}

	if c.Catalog.Source == "" {
		c.Catalog.Source = SourceStatic
	}
	if c.Catalog.Limit == 0 {
		c.Catalog.Limit = defaultCatalogLimit
	}
	if c.Catalog.Lookup == "" {
		c.Catalog.Lookup = SourceStatic
		if c.Catalog.PostgresDSN != "" {
			c.Catalog.Lookup = SourcePostgres
		}
	}

	s := &c.Session
	if s.RecordingTimeout == 0 {
		s.RecordingTimeout = defaultRecordingTimeout
	}
	if s.PerformanceWindow == 0 {
		s.PerformanceWindow = defaultPerformanceWindow
	}
	if s.MaxPhonemes == 0 {
		s.MaxPhonemes = defaultMaxPhonemes
	}
	if s.Language == "" {
		s.Language = defaultLanguage
	}
	if s.Store == "" {
		s.Store = StoreMemory
	}
	if s.PostgresDSN == "" {
		s.PostgresDSN = c.Catalog.PostgresDSN
	}

	if c.Narration.CacheSize == nil {
		n := defaultCacheSize
		c.Narration.CacheSize = &n
	}
	if c.Narration.CacheTTL == 0 {
		c.Narration.CacheTTL = defaultCacheTTL
	}

	if c.Images.Backend == "" {
		c.Images.Backend = ImagesNone
	}
}
