package engram

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/engramhq/engram/internal/config"
)

// Option customizes a single Open call, overriding whatever the layered
// configuration (defaults, config files, environment) resolved for that
// setting.
type Option func(*openConfig)

type openConfig struct {
	backend            string
	postgresDSN        string
	embedModel         string
	embedAPIKey        string
	embedCacheDir      string
	remoteCacheAddr    string
	graphAddr          string
	compactionInterval time.Duration
	logger             zerolog.Logger
	debug              bool
}

func defaultOpenConfig() *openConfig {
	return &openConfig{logger: log.Logger}
}

// apply overlays any option set on oc onto the loaded configuration.
func (oc *openConfig) apply(cfg *config.Config) {
	if oc.backend != "" {
		cfg.Storage.Backend = oc.backend
	}
	if oc.postgresDSN != "" {
		cfg.Storage.PostgresDSN = oc.postgresDSN
	}
	if oc.embedModel != "" {
		cfg.Embed.ModelName = oc.embedModel
	}
	if oc.embedAPIKey != "" {
		cfg.Embed.APIKey = oc.embedAPIKey
	}
	if oc.embedCacheDir != "" {
		cfg.Embed.CacheDir = oc.embedCacheDir
	}
	if oc.remoteCacheAddr != "" {
		cfg.Cache.RemoteAddr = oc.remoteCacheAddr
	}
	if oc.graphAddr != "" {
		cfg.Graph.Addr = oc.graphAddr
	}
	if oc.debug {
		cfg.Debug = true
	}
}

// WithBackend selects the durable storage backend ("sqlite" or "postgres"),
// overriding the configured default.
func WithBackend(backend string) Option {
	return func(oc *openConfig) { oc.backend = backend }
}

// WithPostgresDSN sets the Postgres connection string used when the
// backend is "postgres".
func WithPostgresDSN(dsn string) Option {
	return func(oc *openConfig) { oc.postgresDSN = dsn }
}

// WithEmbedModel selects the embedding model by its registry version
// ("local" or "openai").
func WithEmbedModel(name string) Option {
	return func(oc *openConfig) { oc.embedModel = name }
}

// WithEmbedAPIKey sets the API key used by a remote embedding provider.
func WithEmbedAPIKey(key string) Option {
	return func(oc *openConfig) { oc.embedAPIKey = key }
}

// WithCacheDir overrides where the on-disk embedding cache (cache.db) and
// any downloaded model assets live, instead of the configured default.
func WithCacheDir(dir string) Option {
	return func(oc *openConfig) { oc.embedCacheDir = dir }
}

// WithRemoteCache points the embedding cache's optional shared mirror at a
// Redis-compatible address.
func WithRemoteCache(addr string) Option {
	return func(oc *openConfig) { oc.remoteCacheAddr = addr }
}

// WithProvenanceGraph enables compaction lineage recording against a
// FalkorDB instance at addr. Lineage recording stays disabled otherwise.
func WithProvenanceGraph(addr string) Option {
	return func(oc *openConfig) { oc.graphAddr = addr }
}

// WithCompactionInterval starts a background compaction scheduler that runs
// every interval. Compaction never runs automatically unless this is set;
// callers wanting one-shot or manual compaction should drive
// internal/compactor directly instead.
func WithCompactionInterval(interval time.Duration) Option {
	return func(oc *openConfig) { oc.compactionInterval = interval }
}

// WithLogger sets the logger this store's components log through.
func WithLogger(logger zerolog.Logger) Option {
	return func(oc *openConfig) { oc.logger = logger }
}

// WithDebug raises this store's logger to debug level.
func WithDebug() Option {
	return func(oc *openConfig) { oc.debug = true }
}
