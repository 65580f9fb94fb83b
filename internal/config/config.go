package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/jobdex/internal/domain/job"
	"github.com/kailas-cloud/jobdex/internal/domain/mode"
)

// Config holds the jobdex configuration.
type Config struct {
	Mode      string          `yaml:"mode"` // lightweight, local (full-ml), cloud (cloud-ml)
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Health    HealthConfig    `yaml:"health"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds vector store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	DialTimeoutMs    int      `yaml:"dial_timeout_ms"`
}

// CacheConfig holds search and embedding cache settings. Empty Addrs reuses the database.
type CacheConfig struct {
	Addrs     []string `yaml:"addrs"`
	Password  string   `yaml:"password"`
	TTLSec    int      `yaml:"ttl_sec"`
	TimeoutMs int      `yaml:"timeout_ms"`
	// EmbeddingTTLHours > 0 caches remote vectors in cloud mode.
	EmbeddingTTLHours int `yaml:"embedding_ttl_hours"`
	// EmbeddingLRUSize > 0 keeps recent remote vectors in process for EmbeddingLRUTTLSec.
	EmbeddingLRUSize   int `yaml:"embedding_lru_size"`
	EmbeddingLRUTTLSec int `yaml:"embedding_lru_ttl_sec"`
}

// EmbeddingConfig holds embedding settings shared by all ML modes.
type EmbeddingConfig struct {
	Dimensions    int                  `yaml:"dimensions"`
	TimeoutMs     int                  `yaml:"timeout_ms"`
	Concurrency   int                  `yaml:"concurrency"`
	BatchSize     int                  `yaml:"batch_size"`
	MaxInputBytes int                  `yaml:"max_input_bytes"`
	Cloud         CloudEmbeddingConfig `yaml:"cloud"`
}

// CloudEmbeddingConfig holds the remote OpenAI-compatible endpoint settings.
type CloudEmbeddingConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	// IngestFallback lets ingestion use the local model when the remote fails (default true).
	IngestFallback *bool `yaml:"ingest_fallback"`
}

// IndexConfig holds HNSW index settings.
type IndexConfig struct {
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
}

// SearchConfig holds ranking pipeline settings.
type SearchConfig struct {
	DefaultMaxResults   int          `yaml:"default_max_results"`
	MaxResultsCeiling   int          `yaml:"max_results_ceiling"`
	OversamplingFactor  int          `yaml:"oversampling_factor"`
	MinCandidates       int          `yaml:"min_candidates"`
	MaxCandidates       int          `yaml:"max_candidates"`
	PreferredSkillBoost float64      `yaml:"preferred_skill_boost"`
	MaxPreferredBoost   float64      `yaml:"max_preferred_boost"`
	RetryBackoffMs      int          `yaml:"retry_backoff_ms"`
	Rerank              RerankConfig `yaml:"rerank"`
}

// RerankConfig holds second-stage rerank settings.
type RerankConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Provider   string `yaml:"provider"` // lexical (default), tei
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Candidates int    `yaml:"candidates"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// IngestionConfig holds ingestion and scheduling settings.
type IngestionConfig struct {
	Schedule         string         `yaml:"schedule"` // five-field cron, empty disables
	FetchConcurrency int            `yaml:"fetch_concurrency"`
	FetchTimeoutSec  int            `yaml:"fetch_timeout_sec"`
	MinTextLength    int            `yaml:"min_text_length"`
	ExcludeKeywords  []string       `yaml:"exclude_keywords"`
	MaxLinks         int            `yaml:"max_links"`
	UserAgent        string         `yaml:"user_agent"`
	HNMaxPages       int            `yaml:"hn_max_pages"`
	Sources          []SourceConfig `yaml:"sources"`
}

// SourceConfig enables one board. An empty URL uses the board default.
type SourceConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// HealthConfig holds health probe settings.
type HealthConfig struct {
	CheckTimeoutMs int `yaml:"check_timeout_ms"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = string(mode.Lightweight)
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// ingestion over HTTP runs synchronously
		c.HTTP.WriteTimeoutSec = 600
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 1800
	}
	if c.Cache.EmbeddingLRUSize > 0 && c.Cache.EmbeddingLRUTTLSec <= 0 {
		c.Cache.EmbeddingLRUTTLSec = 600
	}
	if c.Cache.TimeoutMs <= 0 {
		c.Cache.TimeoutMs = 200
	}
	c.applyEmbeddingDefaults()
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	c.applySearchDefaults()
	c.applyIngestionDefaults()
	if c.Health.CheckTimeoutMs <= 0 {
		c.Health.CheckTimeoutMs = 2000
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "jobdex:"
	}
}

func (c *Config) applyEmbeddingDefaults() {
	e := &c.Embedding
	if e.Dimensions <= 0 {
		e.Dimensions = 384
	}
	if e.TimeoutMs <= 0 {
		e.TimeoutMs = 10000
	}
	if e.BatchSize <= 0 {
		e.BatchSize = 32
	}
	if e.Concurrency <= 0 {
		// per-provider ceiling
		e.Concurrency = 2
		if c.Mode == string(mode.Cloud) || c.Mode == "cloud-ml" {
			e.Concurrency = 8
		}
	}
	if e.MaxInputBytes <= 0 {
		e.MaxInputBytes = 32 << 10
	}
	if e.Cloud.Provider == "" {
		e.Cloud.Provider = "openai"
	}
	if e.Cloud.IngestFallback == nil {
		t := true
		e.Cloud.IngestFallback = &t
	}
}

func (c *Config) applySearchDefaults() {
	s := &c.Search
	if s.DefaultMaxResults <= 0 {
		s.DefaultMaxResults = 10
	}
	if s.MaxResultsCeiling <= 0 {
		s.MaxResultsCeiling = 50
	}
	if s.OversamplingFactor <= 0 {
		s.OversamplingFactor = 8
	}
	if s.MinCandidates <= 0 {
		s.MinCandidates = 50
	}
	if s.MaxCandidates <= 0 {
		s.MaxCandidates = 100
	}
	if s.PreferredSkillBoost == 0 {
		s.PreferredSkillBoost = 0.1
	}
	if s.MaxPreferredBoost == 0 {
		s.MaxPreferredBoost = 0.3
	}
	if s.RetryBackoffMs <= 0 {
		s.RetryBackoffMs = 100
	}
	if s.Rerank.Provider == "" {
		s.Rerank.Provider = "lexical"
	}
	if s.Rerank.Candidates <= 0 {
		s.Rerank.Candidates = 50
	}
	if s.Rerank.TimeoutMs <= 0 {
		s.Rerank.TimeoutMs = 5000
	}
}

func (c *Config) applyIngestionDefaults() {
	in := &c.Ingestion
	if in.FetchConcurrency <= 0 {
		in.FetchConcurrency = 4
	}
	if in.FetchTimeoutSec <= 0 {
		in.FetchTimeoutSec = 60
	}
	if in.MinTextLength <= 0 {
		in.MinTextLength = 50
	}
	if in.ExcludeKeywords == nil {
		in.ExcludeKeywords = []string{"unpaid", "volunteer"}
	}
	if in.MaxLinks <= 0 {
		in.MaxLinks = 10
	}
	if in.HNMaxPages <= 0 {
		in.HNMaxPages = 3
	}
	if len(in.Sources) == 0 {
		in.Sources = []SourceConfig{
			{Name: string(job.HackerNews)},
			{Name: string(job.RemoteOK)},
			{Name: string(job.ArbeitNow)},
			{Name: string(job.TheMuse)},
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	m, err := mode.Parse(c.Mode)
	if err != nil {
		return fmt.Errorf("mode: %w", err)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return errors.New("database.addrs is required")
	}
	if c.Cache.TTLSec <= 0 {
		return fmt.Errorf("cache.ttl_sec must be > 0, got %d", c.Cache.TTLSec)
	}
	if m.UsesEmbeddings() && c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be > 0, got %d", c.Embedding.Dimensions)
	}
	if m == mode.Cloud {
		if c.Embedding.Cloud.BaseURL == "" {
			return errors.New("embedding.cloud.base_url is required in cloud mode")
		}
		if c.Embedding.Cloud.Model == "" {
			return errors.New("embedding.cloud.model is required in cloud mode")
		}
	}
	if err := c.Search.validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Ingestion.Sources))
	for i, s := range c.Ingestion.Sources {
		if _, err := job.ParseSource(s.Name); err != nil {
			return fmt.Errorf("ingestion.sources[%d]: %w", i, err)
		}
		if seen[s.Name] {
			return fmt.Errorf("ingestion.sources[%d]: duplicate source %q", i, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

func (s *SearchConfig) validate() error {
	if s.OversamplingFactor < 1 {
		return fmt.Errorf("search.oversampling_factor must be >= 1, got %d", s.OversamplingFactor)
	}
	if s.MaxResultsCeiling < s.DefaultMaxResults {
		return fmt.Errorf("search.max_results_ceiling (%d) must be >= default_max_results (%d)",
			s.MaxResultsCeiling, s.DefaultMaxResults)
	}
	if s.MaxCandidates < s.MinCandidates {
		return fmt.Errorf("search.max_candidates (%d) must be >= min_candidates (%d)", s.MaxCandidates, s.MinCandidates)
	}
	if s.PreferredSkillBoost < 0 || s.MaxPreferredBoost < 0 {
		return errors.New("search boosts must be >= 0")
	}
	switch s.Rerank.Provider {
	case "lexical":
	case "tei":
		if s.Rerank.Enabled && s.Rerank.BaseURL == "" {
			return errors.New("search.rerank.base_url is required for the tei provider")
		}
	default:
		return fmt.Errorf("search.rerank.provider must be \"lexical\" or \"tei\", got %q", s.Rerank.Provider)
	}
	return nil
}

// ParsedMode returns the validated deployment mode.
func (c *Config) ParsedMode() mode.Mode {
	m, err := mode.Parse(c.Mode)
	if err != nil {
		return mode.Lightweight
	}
	return m
}

// IngestFallback reports whether cloud ingestion may fall back to the local model.
func (c *Config) IngestFallback() bool {
	return c.Embedding.Cloud.IngestFallback == nil || *c.Embedding.Cloud.IngestFallback
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
