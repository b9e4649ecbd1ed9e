package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete MnemoLite configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	L1        L1Config        `yaml:"l1" json:"l1"`
	L2        L2Config        `yaml:"l2" json:"l2"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Workers   WorkersConfig   `yaml:"workers" json:"workers"`
	Oracle    OracleConfig    `yaml:"oracle" json:"oracle"`
	Pipeline  PipelineConfig  `yaml:"pipeline" json:"pipeline"`
	Chunk     ChunkConfig     `yaml:"chunk" json:"chunk"`
	Repo      RepoConfig      `yaml:"repo" json:"repo"`
	Lock      LockConfig      `yaml:"lock" json:"lock"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Log       LogConfig       `yaml:"log" json:"log"`
}

// L1Config bounds the in-process chunk cache.
type L1Config struct {
	// MaxBytes is the upper bound on L1 memory. Default 100 MiB.
	MaxBytes int64 `yaml:"max_bytes" json:"max_bytes"`
}

// L2Config configures the shared Redis cache.
type L2Config struct {
	Addr           string    `yaml:"addr" json:"addr"`
	Password       string    `yaml:"password" json:"password"`
	DB             int       `yaml:"db" json:"db"`
	MaxConnections int       `yaml:"max_connections" json:"max_connections"`
	TTL            TTLConfig `yaml:"ttl" json:"ttl"`
}

// TTLConfig holds the per-entry-class TTLs for L2.
type TTLConfig struct {
	Chunks string `yaml:"chunks" json:"chunks"`
	Search string `yaml:"search" json:"search"`
	Graph  string `yaml:"graph" json:"graph"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	URL     string `yaml:"url" json:"url"`
	MaxOpen int    `yaml:"max_open" json:"max_open"`
	MaxIdle int    `yaml:"max_idle" json:"max_idle"`
}

// EmbeddingConfig configures the embedding backend.
type EmbeddingConfig struct {
	// Provider is "http" (external embedding service) or "static"
	// (deterministic offline vectors, used by tests).
	Provider     string `yaml:"provider" json:"provider"`
	Endpoint     string `yaml:"endpoint" json:"endpoint"`
	Model        string `yaml:"model" json:"model"`
	Dimensions   int    `yaml:"dimensions" json:"dimensions"`
	BatchSize    int    `yaml:"batch_size" json:"batch_size"`
	BatchTimeout string `yaml:"batch_timeout" json:"batch_timeout"`
	CacheSize    int    `yaml:"cache_size" json:"cache_size"`
}

// SearchConfig configures hybrid search fusion.
type SearchConfig struct {
	// LexicalWeight and VectorWeight must sum to 1.0.
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`
	VectorWeight  float64 `yaml:"vector_weight" json:"vector_weight"`

	// RRFConstant is the fusion smoothing parameter (k). Default: 60.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// CandidateLimit bounds each per-layer candidate list.
	CandidateLimit int `yaml:"candidate_limit" json:"candidate_limit"`
	MaxResults     int `yaml:"max_results" json:"max_results"`
}

// WorkersConfig configures the indexing worker pool.
type WorkersConfig struct {
	Default             int `yaml:"default" json:"default"`
	SequentialThreshold int `yaml:"sequential_threshold" json:"sequential_threshold"`
}

// OracleConfig configures the optional type oracle.
type OracleConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Command string `yaml:"command" json:"command"`
	Timeout string `yaml:"timeout" json:"timeout"`
}

// PipelineConfig holds per-operation timeout budgets.
type PipelineConfig struct {
	FileTimeout    string `yaml:"file_timeout" json:"file_timeout"`
	ParseTimeout   string `yaml:"parse_timeout" json:"parse_timeout"`
	PersistTimeout string `yaml:"persist_timeout" json:"persist_timeout"`
}

// ChunkConfig configures the chunker.
type ChunkConfig struct {
	// MaxLines is the split threshold for oversized declarations.
	MaxLines int `yaml:"max_lines" json:"max_lines"`
}

// RepoConfig bounds repository scans.
type RepoConfig struct {
	MaxFiles      int    `yaml:"max_files" json:"max_files"`
	MaxFileSize   int64  `yaml:"max_file_size" json:"max_file_size"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// LockConfig configures the repository-scoped distributed lock.
type LockConfig struct {
	TTL string `yaml:"ttl" json:"ttl"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		L1: L1Config{
			MaxBytes: 100 * 1024 * 1024,
		},
		L2: L2Config{
			Addr:           "localhost:6379",
			Password:       "",
			DB:             0,
			MaxConnections: 20,
			TTL: TTLConfig{
				Chunks: "300s",
				Search: "30s",
				Graph:  "120s",
			},
		},
		Database: DatabaseConfig{
			URL:     "postgres://localhost:5432/mnemolite?sslmode=disable",
			MaxOpen: 8,
			MaxIdle: 4,
		},
		Embedding: EmbeddingConfig{
			Provider:     "http",
			Endpoint:     "http://localhost:8089/embed",
			Model:        "",
			Dimensions:   768,
			BatchSize:    32,
			BatchTimeout: "30s",
			CacheSize:    4096,
		},
		Search: SearchConfig{
			LexicalWeight:  0.4,
			VectorWeight:   0.6,
			RRFConstant:    60,
			CandidateLimit: 50,
			MaxResults:     20,
		},
		Workers: WorkersConfig{
			Default:             2,
			SequentialThreshold: 50,
		},
		Oracle: OracleConfig{
			Enabled: true,
			Command: "",
			Timeout: "3s",
		},
		Pipeline: PipelineConfig{
			FileTimeout:    "60s",
			ParseTimeout:   "10s",
			PersistTimeout: "60s",
		},
		Chunk: ChunkConfig{
			MaxLines: 200,
		},
		Repo: RepoConfig{
			MaxFiles:      10000,
			MaxFileSize:   1024 * 1024,
			WatchDebounce: "500ms",
		},
		Lock: LockConfig{
			TTL: "600s",
		},
		Server: ServerConfig{
			Addr: ":8087",
		},
		Log: LogConfig{
			Level: "info",
			File:  "",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/mnemolite/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/mnemolite/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mnemolite", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "mnemolite", "config.yaml")
	}
	return filepath.Join(home, ".config", "mnemolite", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/mnemolite/config.yaml)
//  3. Project config (mnemolite.yaml in the directory)
//  4. .env file plus MNEMOLITE_* environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	// .env is optional; a missing file is not an error
	_ = godotenv.Load(filepath.Join(dir, ".env"))
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile loads configuration from an explicit file path, then applies
// environment overrides and validates.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromFile attempts to load configuration from mnemolite.yaml or .mnemolite.yaml.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{"mnemolite.yaml", ".mnemolite.yaml", ".mnemolite.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.L1.MaxBytes != 0 {
		c.L1.MaxBytes = other.L1.MaxBytes
	}

	if other.L2.Addr != "" {
		c.L2.Addr = other.L2.Addr
	}
	if other.L2.Password != "" {
		c.L2.Password = other.L2.Password
	}
	if other.L2.DB != 0 {
		c.L2.DB = other.L2.DB
	}
	if other.L2.MaxConnections != 0 {
		c.L2.MaxConnections = other.L2.MaxConnections
	}
	if other.L2.TTL.Chunks != "" {
		c.L2.TTL.Chunks = other.L2.TTL.Chunks
	}
	if other.L2.TTL.Search != "" {
		c.L2.TTL.Search = other.L2.TTL.Search
	}
	if other.L2.TTL.Graph != "" {
		c.L2.TTL.Graph = other.L2.TTL.Graph
	}

	if other.Database.URL != "" {
		c.Database.URL = other.Database.URL
	}
	if other.Database.MaxOpen != 0 {
		c.Database.MaxOpen = other.Database.MaxOpen
	}
	if other.Database.MaxIdle != 0 {
		c.Database.MaxIdle = other.Database.MaxIdle
	}

	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Endpoint != "" {
		c.Embedding.Endpoint = other.Embedding.Endpoint
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.BatchTimeout != "" {
		c.Embedding.BatchTimeout = other.Embedding.BatchTimeout
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}

	if other.Search.LexicalWeight != 0 {
		c.Search.LexicalWeight = other.Search.LexicalWeight
	}
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.CandidateLimit != 0 {
		c.Search.CandidateLimit = other.Search.CandidateLimit
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	if other.Workers.Default != 0 {
		c.Workers.Default = other.Workers.Default
	}
	if other.Workers.SequentialThreshold != 0 {
		c.Workers.SequentialThreshold = other.Workers.SequentialThreshold
	}

	// Enabled is boolean - only merge it when some oracle config was set.
	// MNEMOLITE_ORACLE_ENABLED covers the standalone toggle.
	if other.Oracle.Command != "" || other.Oracle.Timeout != "" {
		c.Oracle.Enabled = other.Oracle.Enabled
	}
	if other.Oracle.Command != "" {
		c.Oracle.Command = other.Oracle.Command
	}
	if other.Oracle.Timeout != "" {
		c.Oracle.Timeout = other.Oracle.Timeout
	}

	if other.Pipeline.FileTimeout != "" {
		c.Pipeline.FileTimeout = other.Pipeline.FileTimeout
	}
	if other.Pipeline.ParseTimeout != "" {
		c.Pipeline.ParseTimeout = other.Pipeline.ParseTimeout
	}
	if other.Pipeline.PersistTimeout != "" {
		c.Pipeline.PersistTimeout = other.Pipeline.PersistTimeout
	}

	if other.Chunk.MaxLines != 0 {
		c.Chunk.MaxLines = other.Chunk.MaxLines
	}

	if other.Repo.MaxFiles != 0 {
		c.Repo.MaxFiles = other.Repo.MaxFiles
	}
	if other.Repo.MaxFileSize != 0 {
		c.Repo.MaxFileSize = other.Repo.MaxFileSize
	}
	if other.Repo.WatchDebounce != "" {
		c.Repo.WatchDebounce = other.Repo.WatchDebounce
	}

	if other.Lock.TTL != "" {
		c.Lock.TTL = other.Lock.TTL
	}

	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
}

// applyEnvOverrides applies MNEMOLITE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MNEMOLITE_L2_ADDR"); v != "" {
		c.L2.Addr = v
	}
	if v := os.Getenv("MNEMOLITE_L2_PASSWORD"); v != "" {
		c.L2.Password = v
	}
	if v := os.Getenv("MNEMOLITE_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("MNEMOLITE_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("MNEMOLITE_EMBEDDING_ENDPOINT"); v != "" {
		c.Embedding.Endpoint = v
	}
	if v := os.Getenv("MNEMOLITE_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embedding.Dimensions = n
		}
	}
	if v := os.Getenv("MNEMOLITE_LEXICAL_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.LexicalWeight = w
		}
	}
	if v := os.Getenv("MNEMOLITE_VECTOR_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("MNEMOLITE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workers.Default = n
		}
	}
	if v := os.Getenv("MNEMOLITE_ORACLE_ENABLED"); v != "" {
		c.Oracle.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("MNEMOLITE_ORACLE_COMMAND"); v != "" {
		c.Oracle.Command = v
	}
	if v := os.Getenv("MNEMOLITE_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MNEMOLITE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MNEMOLITE_LOG_FILE"); v != "" {
		c.Log.File = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Duration accessors. Invalid strings fall back to the default value;
// Validate catches them first on any normal load path.

// ChunkTTL returns the L2 TTL for chunk entries.
func (c *Config) ChunkTTL() time.Duration { return parseDuration(c.L2.TTL.Chunks, 300*time.Second) }

// SearchTTL returns the L2 TTL for search result entries.
func (c *Config) SearchTTL() time.Duration { return parseDuration(c.L2.TTL.Search, 30*time.Second) }

// GraphTTL returns the L2 TTL for graph traversal entries.
func (c *Config) GraphTTL() time.Duration { return parseDuration(c.L2.TTL.Graph, 120*time.Second) }

// LockTTL returns the repository lock TTL.
func (c *Config) LockTTL() time.Duration { return parseDuration(c.Lock.TTL, 600*time.Second) }

// FileTimeout returns the per-file pipeline budget.
func (c *Config) FileTimeout() time.Duration {
	return parseDuration(c.Pipeline.FileTimeout, 60*time.Second)
}

// ParseTimeout returns the per-file parse budget.
func (c *Config) ParseTimeout() time.Duration {
	return parseDuration(c.Pipeline.ParseTimeout, 10*time.Second)
}

// PersistTimeout returns the per-file persist budget.
func (c *Config) PersistTimeout() time.Duration {
	return parseDuration(c.Pipeline.PersistTimeout, 60*time.Second)
}

// OracleTimeout returns the per-call oracle budget.
func (c *Config) OracleTimeout() time.Duration {
	return parseDuration(c.Oracle.Timeout, 3*time.Second)
}

// EmbedTimeout returns the per-batch embedding budget.
func (c *Config) EmbedTimeout() time.Duration {
	return parseDuration(c.Embedding.BatchTimeout, 30*time.Second)
}

// WatchDebounce returns the watcher debounce interval.
func (c *Config) WatchDebounce() time.Duration {
	return parseDuration(c.Repo.WatchDebounce, 500*time.Millisecond)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.L1.MaxBytes <= 0 {
		return fmt.Errorf("l1.max_bytes must be positive, got %d", c.L1.MaxBytes)
	}

	if c.L2.MaxConnections <= 0 {
		return fmt.Errorf("l2.max_connections must be positive, got %d", c.L2.MaxConnections)
	}

	for name, s := range map[string]string{
		"l2.ttl.chunks":            c.L2.TTL.Chunks,
		"l2.ttl.search":            c.L2.TTL.Search,
		"l2.ttl.graph":             c.L2.TTL.Graph,
		"lock.ttl":                 c.Lock.TTL,
		"pipeline.file_timeout":    c.Pipeline.FileTimeout,
		"pipeline.parse_timeout":   c.Pipeline.ParseTimeout,
		"pipeline.persist_timeout": c.Pipeline.PersistTimeout,
		"oracle.timeout":           c.Oracle.Timeout,
		"embedding.batch_timeout":  c.Embedding.BatchTimeout,
	} {
		if s == "" {
			continue
		}
		if d, err := time.ParseDuration(s); err != nil || d <= 0 {
			return fmt.Errorf("%s must be a positive duration, got %q", name, s)
		}
	}

	if c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		return fmt.Errorf("search.lexical_weight must be between 0 and 1, got %f", c.Search.LexicalWeight)
	}
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("search.vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight)
	}
	sum := c.Search.LexicalWeight + c.Search.VectorWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("search.lexical_weight + search.vector_weight must equal 1.0, got %.2f", sum)
	}

	if c.Embedding.Provider != "" {
		validProviders := map[string]bool{"http": true, "static": true}
		if !validProviders[strings.ToLower(c.Embedding.Provider)] {
			return fmt.Errorf("embedding.provider must be 'http' or 'static', got %s", c.Embedding.Provider)
		}
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}

	if c.Workers.Default < 1 {
		return fmt.Errorf("workers.default must be at least 1, got %d", c.Workers.Default)
	}
	if c.Workers.SequentialThreshold < 0 {
		return fmt.Errorf("workers.sequential_threshold must be non-negative, got %d", c.Workers.SequentialThreshold)
	}

	if c.Repo.MaxFiles <= 0 {
		return fmt.Errorf("repo.max_files must be positive, got %d", c.Repo.MaxFiles)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Log.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FindProjectRoot finds the project root directory.
// It looks for a .git directory or a mnemolite config file by walking
// up the directory tree.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		if fileExists(filepath.Join(currentDir, "mnemolite.yaml")) ||
			fileExists(filepath.Join(currentDir, ".mnemolite.yaml")) ||
			fileExists(filepath.Join(currentDir, ".mnemolite.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root, return original directory
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
