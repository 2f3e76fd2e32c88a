// Package config manages layered configuration for the memory engine:
// built-in defaults, a system config file, a user config file, and
// environment variable overrides, merged in that order.
package config

import (
	"os"
	"path/filepath"

	"github.com/engramhq/engram/internal/engramerr"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	SystemConfigPath = "/etc/engram/config.yaml"

	envDBPath = "ENGRAM_DB_PATH"
	envDebug  = "ENGRAM_DEBUG"
	envAPIKey = "ENGRAM_EMBED_API_KEY"
)

// StorageConfig controls the durable record store.
type StorageConfig struct {
	Backend        string `yaml:"backend"`
	DBPath         string `yaml:"db_path"`
	JournalMode    string `yaml:"journal_mode"`
	Synchronous    string `yaml:"synchronous"`
	PostgresDSN    string `yaml:"postgres_dsn"`
	VectorDimension int   `yaml:"vector_dimension"`
}

// EmbedConfig controls the embedding model and its cache.
type EmbedConfig struct {
	ModelName     string `yaml:"model_name"`
	CacheDir      string `yaml:"cache_dir"`
	CacheSize     int    `yaml:"cache_size"`
	BatchSize     int    `yaml:"batch_size"`
	APIKey        string `yaml:"api_key"`
	APIKeyEncrypted string `yaml:"api_key_encrypted"`
	BaseURL       string `yaml:"base_url"`
	IdleTimeoutMinutes int `yaml:"idle_timeout_minutes"`
}

// CacheConfig controls the optional shared remote embedding cache mirror.
type CacheConfig struct {
	RemoteAddr string `yaml:"remote_addr"`
}

// GraphConfig controls the optional compaction provenance graph.
type GraphConfig struct {
	Addr string `yaml:"addr"`
}

// SearchConfig controls retrieval defaults.
type SearchConfig struct {
	DefaultTopK int     `yaml:"default_topk"`
	HybridAlpha float64 `yaml:"hybrid_alpha"`
	TimeoutMS   int     `yaml:"timeout_ms"`
}

// CompactConfig controls the compactor.
type CompactConfig struct {
	AgeDays                  int     `yaml:"age_days"`
	MinMemoriesToCompact     int     `yaml:"min_memories_to_compact"`
	CompactImportanceThreshold float64 `yaml:"compact_importance_threshold"`
	SummaryImportance        float64 `yaml:"summary_importance"`
}

// Config is the full, merged engine configuration.
type Config struct {
	Storage  StorageConfig `yaml:"storage"`
	Embed    EmbedConfig   `yaml:"embed"`
	Cache    CacheConfig   `yaml:"cache"`
	Graph    GraphConfig   `yaml:"graph"`
	Search   SearchConfig  `yaml:"search"`
	Compact  CompactConfig `yaml:"compact"`
	Debug    bool          `yaml:"debug"`
}

// DefaultHome returns ~/.engram, the default data directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".engram")
}

// UserConfigPath returns the path to the per-user config file.
func UserConfigPath() string {
	return filepath.Join(DefaultHome(), "config.yaml")
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	home := DefaultHome()
	return &Config{
		Storage: StorageConfig{
			Backend:         "sqlite",
			DBPath:          filepath.Join(home, "memory.db"),
			JournalMode:     "WAL",
			Synchronous:     "NORMAL",
			VectorDimension: 384,
		},
		Embed: EmbedConfig{
			ModelName: "local",
			CacheDir:  home,
			CacheSize: 1000,
			BatchSize: 32,
			BaseURL:   "https://api.openai.com/v1",
			IdleTimeoutMinutes: 10,
		},
		Search: SearchConfig{
			DefaultTopK: 5,
			HybridAlpha: 0.6,
			TimeoutMS:   5000,
		},
		Compact: CompactConfig{
			AgeDays:                    30,
			MinMemoriesToCompact:       5,
			CompactImportanceThreshold: 0.6,
			SummaryImportance:          0.85,
		},
	}
}

// merge deep-merges src into dst: any non-zero scalar field or non-empty
// string in src overrides dst; this mirrors memento/config.py's recursive
// dict merge, adapted to Go structs field by field.
func merge(dst *Config, src *Config) {
	if src.Storage.Backend != "" {
		dst.Storage.Backend = src.Storage.Backend
	}
	if src.Storage.DBPath != "" {
		dst.Storage.DBPath = src.Storage.DBPath
	}
	if src.Storage.JournalMode != "" {
		dst.Storage.JournalMode = src.Storage.JournalMode
	}
	if src.Storage.Synchronous != "" {
		dst.Storage.Synchronous = src.Storage.Synchronous
	}
	if src.Storage.PostgresDSN != "" {
		dst.Storage.PostgresDSN = src.Storage.PostgresDSN
	}
	if src.Storage.VectorDimension != 0 {
		dst.Storage.VectorDimension = src.Storage.VectorDimension
	}
	if src.Embed.ModelName != "" {
		dst.Embed.ModelName = src.Embed.ModelName
	}
	if src.Embed.CacheDir != "" {
		dst.Embed.CacheDir = src.Embed.CacheDir
	}
	if src.Embed.CacheSize != 0 {
		dst.Embed.CacheSize = src.Embed.CacheSize
	}
	if src.Embed.BatchSize != 0 {
		dst.Embed.BatchSize = src.Embed.BatchSize
	}
	if src.Embed.APIKey != "" {
		dst.Embed.APIKey = src.Embed.APIKey
	}
	if src.Embed.APIKeyEncrypted != "" {
		dst.Embed.APIKeyEncrypted = src.Embed.APIKeyEncrypted
	}
	if src.Embed.BaseURL != "" {
		dst.Embed.BaseURL = src.Embed.BaseURL
	}
	if src.Embed.IdleTimeoutMinutes != 0 {
		dst.Embed.IdleTimeoutMinutes = src.Embed.IdleTimeoutMinutes
	}
	if src.Cache.RemoteAddr != "" {
		dst.Cache.RemoteAddr = src.Cache.RemoteAddr
	}
	if src.Graph.Addr != "" {
		dst.Graph.Addr = src.Graph.Addr
	}
	if src.Search.DefaultTopK != 0 {
		dst.Search.DefaultTopK = src.Search.DefaultTopK
	}
	if src.Search.HybridAlpha != 0 {
		dst.Search.HybridAlpha = src.Search.HybridAlpha
	}
	if src.Search.TimeoutMS != 0 {
		dst.Search.TimeoutMS = src.Search.TimeoutMS
	}
	if src.Compact.AgeDays != 0 {
		dst.Compact.AgeDays = src.Compact.AgeDays
	}
	if src.Compact.MinMemoriesToCompact != 0 {
		dst.Compact.MinMemoriesToCompact = src.Compact.MinMemoriesToCompact
	}
	if src.Compact.CompactImportanceThreshold != 0 {
		dst.Compact.CompactImportanceThreshold = src.Compact.CompactImportanceThreshold
	}
	if src.Compact.SummaryImportance != 0 {
		dst.Compact.SummaryImportance = src.Compact.SummaryImportance
	}
	if src.Debug {
		dst.Debug = src.Debug
	}
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, engramerr.WrapConfiguration(err, "read config file %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, engramerr.WrapConfiguration(err, "parse config file %s", path)
	}
	return &cfg, nil
}

// Load builds the effective configuration: defaults, then the system config
// file, then the user config file, then environment variables, each merged
// on top of the last.
func Load() (*Config, error) {
	cfg := Default()

	if sys, err := loadFile(SystemConfigPath); err != nil {
		return nil, err
	} else if sys != nil {
		merge(cfg, sys)
	}

	if usr, err := loadFile(UserConfigPath()); err != nil {
		return nil, err
	} else if usr != nil {
		merge(cfg, usr)
	}

	applyEnv(cfg)

	if cfg.Embed.APIKeyEncrypted != "" && cfg.Embed.APIKey == "" {
		key, err := decryptAPIKey(cfg.Embed.APIKeyEncrypted)
		if err != nil {
			log.Warn().Err(err).Msg("failed to decrypt embedding API key, ignoring")
		} else {
			cfg.Embed.APIKey = key
		}
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(envDBPath); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv(envDebug); v == "1" || v == "true" {
		cfg.Debug = true
	}
	if v := os.Getenv(envAPIKey); v != "" {
		cfg.Embed.APIKey = v
	}
}
