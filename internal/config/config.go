// Package config loads the cite configuration from
// ~/.config/cite/config.yml, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/matsen/citegraph/internal/embedding"
)

// Config is the effective configuration of the cite tools.
type Config struct {
	DBPath   string `yaml:"db_path" json:"db_path"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Graph expansion
	MaxGraphDepth  int `yaml:"max_graph_depth" json:"max_graph_depth"`
	MaxTopicPapers int `yaml:"max_topic_papers" json:"max_topic_papers"`

	// Registry
	CrossrefBaseURL string `yaml:"crossref_base_url" json:"crossref_base_url"`
	CrossrefMailto  string `yaml:"crossref_mailto,omitempty" json:"crossref_mailto,omitempty"`

	// Embeddings
	EmbeddingProvider string `yaml:"embedding_provider" json:"embedding_provider"`
	EmbeddingModel    string `yaml:"embedding_model,omitempty" json:"embedding_model,omitempty"`
	EmbeddingBaseURL  string `yaml:"embedding_base_url,omitempty" json:"embedding_base_url,omitempty"`
	OpenRouterAPIKey  string `yaml:"openrouter_api_key,omitempty" json:"openrouter_api_key,omitempty"`
	VectorDimension   int    `yaml:"vector_dimension" json:"vector_dimension"`

	// Job queue
	RedisURL   string        `yaml:"redis_url" json:"redis_url"`
	JobTimeout time.Duration `yaml:"job_timeout" json:"job_timeout"`
}

const (
	// ConfigDir is the directory name under XDG_CONFIG_HOME and XDG_DATA_HOME.
	ConfigDir = "cite"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"
	// DBFile is the default database file name.
	DBFile = "citegraph.db"
)

// Defaults.
const (
	DefaultMaxGraphDepth     = 3
	DefaultMaxTopicPapers    = 30
	DefaultVectorDimension   = 768
	DefaultCrossrefBaseURL   = "https://api.crossref.org"
	DefaultEmbeddingProvider = embedding.ProviderOllama
	DefaultRedisURL          = "redis://localhost:6379"
	DefaultJobTimeout        = 30 * time.Minute
	DefaultLogLevel          = "info"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DBPath:            DefaultDBPath(),
		LogLevel:          DefaultLogLevel,
		MaxGraphDepth:     DefaultMaxGraphDepth,
		MaxTopicPapers:    DefaultMaxTopicPapers,
		CrossrefBaseURL:   DefaultCrossrefBaseURL,
		EmbeddingProvider: DefaultEmbeddingProvider,
		VectorDimension:   DefaultVectorDimension,
		RedisURL:          DefaultRedisURL,
		JobTimeout:        DefaultJobTimeout,
	}
}

// Path returns the path to the config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/cite/config.yml.
func Path() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), ConfigDir, ConfigFile)
}

// DefaultDBPath returns the default database location.
// Respects XDG_DATA_HOME, defaults to ~/.local/share/cite/citegraph.db.
func DefaultDBPath() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")), ConfigDir, DBFile)
}

func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fallback
	}
	return filepath.Join(home, fallback)
}

// Load reads the config file at Path(), then applies .env and environment
// overrides.
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile is Load for an explicit config file. A missing file is not an
// error: the defaults are used.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.DBPath = ExpandPath(cfg.DBPath)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env files (default ./.env) into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv() error {
	strs := []struct {
		env string
		dst *string
	}{
		{"CITE_DB_PATH", &c.DBPath},
		{"CITE_LOG_LEVEL", &c.LogLevel},
		{"CROSSREF_BASE_URL", &c.CrossrefBaseURL},
		{"CROSSREF_MAILTO", &c.CrossrefMailto},
		{"EMBEDDING_PROVIDER", &c.EmbeddingProvider},
		{"EMBEDDING_MODEL", &c.EmbeddingModel},
		{"EMBEDDING_BASE_URL", &c.EmbeddingBaseURL},
		{"OPENROUTER_API_KEY", &c.OpenRouterAPIKey},
		{"REDIS_URL", &c.RedisURL},
	}
	for _, s := range strs {
		if v, ok := os.LookupEnv(s.env); ok && v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"MAX_GRAPH_DEPTH", &c.MaxGraphDepth},
		{"MAX_TOPIC_PAPERS", &c.MaxTopicPapers},
		{"VECTOR_DIMENSION", &c.VectorDimension},
	}
	for _, i := range ints {
		v, ok := os.LookupEnv(i.env)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, i.env, v)
		}
		*i.dst = n
	}

	if v := os.Getenv("JOB_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: JOB_TIMEOUT=%q: %v", ErrInvalid, v, err)
		}
		c.JobTimeout = d
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is empty"))
	}
	if c.MaxGraphDepth < 0 {
		errs = append(errs, fmt.Errorf("max_graph_depth must be >= 0, got %d", c.MaxGraphDepth))
	}
	if c.MaxTopicPapers <= 0 {
		errs = append(errs, fmt.Errorf("max_topic_papers must be > 0, got %d", c.MaxTopicPapers))
	}
	if c.VectorDimension <= 0 {
		errs = append(errs, fmt.Errorf("vector_dimension must be > 0, got %d", c.VectorDimension))
	}
	if c.JobTimeout <= 0 {
		errs = append(errs, fmt.Errorf("job_timeout must be positive, got %s", c.JobTimeout))
	}
	switch c.EmbeddingProvider {
	case embedding.ProviderOllama, embedding.ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("embedding_provider must be %s or %s, got %q",
			embedding.ProviderOllama, embedding.ProviderOpenAI, c.EmbeddingProvider))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Embedding returns the embedding provider settings.
func (c *Config) Embedding() embedding.Settings {
	return embedding.Settings{
		Provider:   c.EmbeddingProvider,
		Model:      c.EmbeddingModel,
		BaseURL:    c.EmbeddingBaseURL,
		APIKey:     c.OpenRouterAPIKey,
		Dimensions: c.VectorDimension,
	}
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.OpenRouterAPIKey != "" {
		out.OpenRouterAPIKey = "***"
	}
	return out
}

// Save writes the configuration to path, creating its directory.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ParseLevel maps a log level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}
