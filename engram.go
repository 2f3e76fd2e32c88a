// Package engram is the public surface of the persistent semantic memory
// engine: Open a store once per database path, Remember text into it, and
// Recall it back by hybrid vector-plus-keyword search.
package engram

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/engramhq/engram/internal/compactor"
	"github.com/engramhq/engram/internal/config"
	"github.com/engramhq/engram/internal/embedcache"
	"github.com/engramhq/engram/internal/embedding"
	"github.com/engramhq/engram/internal/engramerr"
	"github.com/engramhq/engram/internal/ingest"
	"github.com/engramhq/engram/internal/provenance"
	"github.com/engramhq/engram/internal/recordstore"
	"github.com/engramhq/engram/internal/recordstore/postgres"
	"github.com/engramhq/engram/internal/recordstore/sqlite"
	"github.com/engramhq/engram/internal/retrieval"
)

// Re-exported so callers only need to import this one package.
type (
	RememberOptions = ingest.Options
	RecallOptions   = retrieval.Options
	Result          = retrieval.Result
	Record          = recordstore.Record
	Stats           = recordstore.Stats
)

// Store is a single opened memory engine: durable record storage, the
// embedding cache, the Remember write path, and the Recall read path,
// wired together per Open's resolved configuration.
type Store struct {
	key         string
	path        string
	cfg         *config.Config
	backend     recordstore.Store
	cache       *embedcache.Cache
	pipeline    *ingest.Pipeline
	engine      *retrieval.Engine
	prov        provenance.Recorder
	scheduler   *compactor.Scheduler
	schedCancel context.CancelFunc
	log         zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

var (
	registryMu sync.Mutex
	registry   = map[string]*Store{}
)

func registryKey(backend, dbPath, dsn string) string {
	if backend == "postgres" {
		return "postgres:" + dsn
	}
	return "sqlite:" + dbPath
}

// Open returns the Store for path, creating and registering it on first
// call and returning that same instance for every later call with the same
// resolved path (or DSN, for the Postgres backend) within this process. An
// empty path falls back to the configured default database location.
func Open(path string, opts ...Option) (*Store, error) {
	oc := defaultOpenConfig()
	for _, opt := range opts {
		opt(oc)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, engramerr.WrapConfiguration(err, "load engine configuration")
	}
	oc.apply(cfg)

	dbPath := path
	if dbPath == "" {
		dbPath = cfg.Storage.DBPath
	}

	key := registryKey(cfg.Storage.Backend, dbPath, cfg.Storage.PostgresDSN)

	registryMu.Lock()
	defer registryMu.Unlock()
	if s, ok := registry[key]; ok {
		return s, nil
	}

	s, err := newStore(key, dbPath, cfg, oc)
	if err != nil {
		return nil, err
	}
	registry[key] = s
	return s, nil
}

func newStore(key, dbPath string, cfg *config.Config, oc *openConfig) (*Store, error) {
	logger := oc.logger
	if cfg.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	}

	backend, err := openBackend(dbPath, cfg, logger)
	if err != nil {
		return nil, err
	}

	cacheDir := cfg.Embed.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Dir(dbPath)
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		_ = backend.Close()
		return nil, engramerr.WrapStorage(err, "create embedding cache directory")
	}

	cache, err := embedcache.New(embedcache.Options{
		Factory:     embedderFactory(cfg),
		Dimension:   cfg.Storage.VectorDimension,
		CacheDir:    cacheDir,
		LRUSize:     cfg.Embed.CacheSize,
		IdleTimeout: int64(cfg.Embed.IdleTimeoutMinutes),
		RemoteAddr:  cfg.Cache.RemoteAddr,
		Logger:      logger,
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	prov, err := provenance.NewRecorder(cfg.Graph.Addr, logger)
	if err != nil {
		_ = cache.Close()
		_ = backend.Close()
		return nil, err
	}

	s := &Store{
		key:      key,
		path:     dbPath,
		cfg:      cfg,
		backend:  backend,
		cache:    cache,
		pipeline: ingest.NewPipeline(backend, cache, logger),
		engine:   retrieval.NewEngine(backend, cache, logger),
		prov:     prov,
		log:      logger.With().Str("component", "engram-store").Logger(),
	}

	if oc.compactionInterval > 0 {
		ccfg := compactor.Config{
			AgeThresholdDays:           cfg.Compact.AgeDays,
			MinMemoriesToCompact:       cfg.Compact.MinMemoriesToCompact,
			CompactImportanceThreshold: cfg.Compact.CompactImportanceThreshold,
			SummaryImportance:          cfg.Compact.SummaryImportance,
		}
		comp := compactor.New(backend, cache, prov, ccfg, logger)
		s.scheduler = compactor.NewScheduler(comp, oc.compactionInterval, logger)
		ctx, cancel := context.WithCancel(context.Background())
		s.schedCancel = cancel
		go s.scheduler.Start(ctx)
	}

	return s, nil
}

func openBackend(dbPath string, cfg *config.Config, logger zerolog.Logger) (recordstore.Store, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		return postgres.Open(cfg.Storage.PostgresDSN, cfg.Storage.VectorDimension)
	case "", "sqlite":
		return sqlite.Open(dbPath, logger)
	default:
		return nil, engramerr.ConfigurationErrorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func embedderFactory(cfg *config.Config) embedding.Factory {
	return func() (embedding.Embedder, error) {
		switch cfg.Embed.ModelName {
		case embedding.OpenAIModelVersion:
			return embedding.NewOpenAIEmbedder(embedding.OpenAIOptions{
				APIKey:     cfg.Embed.APIKey,
				BaseURL:    cfg.Embed.BaseURL,
				Dimensions: cfg.Storage.VectorDimension,
			})
		default:
			return embedding.GetModel(embedding.LocalModelVersion)
		}
	}
}

// Remember persists text as a new memory (or returns an existing id, on a
// near-duplicate hit), applying rate limiting, sanitisation, validation,
// and deduplication along the way.
func (s *Store) Remember(ctx context.Context, text string, opts RememberOptions) (string, error) {
	return s.pipeline.Remember(ctx, text, opts)
}

// RememberDocument splits a long document into semantically coherent
// chunks and remembers each one, returning their ids in chunk order.
func (s *Store) RememberDocument(ctx context.Context, text string, docID string, opts RememberOptions) ([]string, error) {
	return s.pipeline.RememberDocument(ctx, text, docID, opts)
}

// Recall runs a single hybrid vector-plus-keyword query and returns its
// reranked results.
func (s *Store) Recall(ctx context.Context, query string, opts RecallOptions) ([]Result, error) {
	return s.engine.Recall(ctx, query, opts)
}

// BatchRecall runs multiple queries against the same filter, sharing one
// embedding batch call.
func (s *Store) BatchRecall(ctx context.Context, queries []string, opts RecallOptions) ([][]Result, error) {
	return s.engine.BatchRecall(ctx, queries, opts)
}

// GetRecent returns the n most recently stored records in collection,
// newest first, bypassing ranking entirely.
func (s *Store) GetRecent(ctx context.Context, n int, collection string) ([]Record, error) {
	return s.engine.GetRecent(ctx, n, collection)
}

// Delete removes a memory by id, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	return s.backend.Delete(ctx, id)
}

// Stats summarizes the store's current contents.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	return s.backend.Stats(ctx)
}

// Backup copies the durable store to path, returning the path actually
// written to.
func (s *Store) Backup(ctx context.Context, path string) (string, error) {
	return s.backend.Backup(ctx, path)
}

// Close releases every resource this Store holds and deregisters it, so a
// later Open with the same path opens a fresh Store. Safe to call more than
// once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		registryMu.Lock()
		delete(registry, s.key)
		registryMu.Unlock()

		if s.scheduler != nil {
			s.scheduler.Stop()
		}
		if s.schedCancel != nil {
			s.schedCancel()
		}
		if err := s.prov.Close(); err != nil {
			s.log.Warn().Err(err).Msg("closing provenance recorder")
		}
		if err := s.cache.Close(); err != nil {
			s.closeErr = err
		}
		if err := s.backend.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// Path returns the database path (or DSN, for Postgres) this Store was
// opened against.
func (s *Store) Path() string { return s.path }
