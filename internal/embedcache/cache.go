// Package embedcache implements the two-tier embedding cache (in-memory LRU
// over an on-disk persistent store) and the background ModelLifecycle that
// manages the underlying Embedder, grounded on memento/embed.py and
// internal/vector/sqlitevec/client.go's stats/singleflight structuring.
package embedcache

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/engramhq/engram/internal/embedding"
	"github.com/engramhq/engram/internal/engramerr"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// smallBatchThreshold is the reference's literal ≤10-item boundary: batches at
// or under this size go through per-item caching, larger batches bypass the
// cache entirely and call the embedder once for throughput.
const smallBatchThreshold = 10

// Options configures a Cache.
type Options struct {
	Factory     embedding.Factory
	Dimension   int
	CacheDir    string
	LRUSize     int
	IdleTimeout int64 // minutes; 0 disables idle-unload
	RemoteAddr  string
	Logger      zerolog.Logger
}

// Stats reports cache tier hit/miss counters and lifecycle status.
type Stats struct {
	LRUHits     int64
	DiskHits    int64
	Misses      int64
	Coalesced   int64
	LRUSize     int
	LRUCapacity int
	ModelLoaded bool
}

// Cache is the two-tier embedding cache plus model lifecycle.
type Cache struct {
	lifecycle *Lifecycle
	lru       *lru
	disk      *diskCache
	remote    *remoteMirror
	group     singleflight.Group
	log       zerolog.Logger
	dim       int

	lruHits   atomic.Int64
	diskHits  atomic.Int64
	misses    atomic.Int64
	coalesced atomic.Int64
}

// New constructs a Cache. The disk tier lives at <CacheDir>/cache.db.
func New(opts Options) (*Cache, error) {
	disk, err := openDiskCache(filepath.Join(opts.CacheDir, "cache.db"), opts.Dimension)
	if err != nil {
		return nil, engramerr.WrapStorage(err, "open embedding cache")
	}

	c := &Cache{
		lifecycle: NewLifecycle(opts.Factory, time.Duration(opts.IdleTimeout)*time.Minute, opts.Logger),
		lru:       newLRU(opts.LRUSize),
		disk:      disk,
		log:       opts.Logger.With().Str("component", "embed-cache").Logger(),
		dim:       opts.Dimension,
	}
	if opts.RemoteAddr != "" {
		c.remote = newRemoteMirror(opts.RemoteAddr, opts.Dimension, opts.Logger)
	}
	return c, nil
}

// Close releases the model and closes the disk tier.
func (c *Cache) Close() error {
	c.lifecycle.Unload(true)
	if c.remote != nil {
		_ = c.remote.close()
	}
	return c.disk.close()
}

// Dimension returns the configured embedding width.
func (c *Cache) Dimension() int { return c.dim }

// Embed returns the cached or freshly computed embedding for text.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, true)
}

// EmbedNoCache bypasses every cache tier and always calls the embedder.
func (c *Cache) EmbedNoCache(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, false)
}

func (c *Cache) embed(ctx context.Context, text string, useCache bool) ([]float32, error) {
	if !useCache {
		model, err := c.lifecycle.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return model.Embed(ctx, text)
	}

	key := digest(text)

	if v, ok := c.lru.get(key); ok {
		c.lruHits.Add(1)
		return v, nil
	}
	if v, ok, err := c.disk.get(ctx, key); err != nil {
		return nil, engramerr.WrapStorage(err, "read embedding cache")
	} else if ok {
		c.diskHits.Add(1)
		c.lru.put(key, v)
		return v, nil
	}
	if c.remote != nil {
		if v, ok := c.remote.get(key); ok {
			c.diskHits.Add(1)
			c.lru.put(key, v)
			return v, nil
		}
	}

	c.misses.Add(1)
	v, err, shared := c.group.Do(key, func() (any, error) {
		model, err := c.lifecycle.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		vec, err := model.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		if err := c.disk.put(ctx, key, vec); err != nil {
			c.log.Warn().Err(err).Msg("failed to persist embedding to disk cache")
		}
		if c.remote != nil {
			c.remote.put(key, vec)
		}
		return vec, nil
	})
	if shared {
		c.coalesced.Add(1)
	}
	if err != nil {
		return nil, err
	}
	vec := v.([]float32)
	c.lru.put(key, vec)
	return vec, nil
}

// EmbedBatch embeds many texts at once. Batches at or under
// smallBatchThreshold go through per-item caching; larger batches bypass the
// cache and call the embedder once, matching memento/embed.py's literal
// batching policy.
func (c *Cache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= smallBatchThreshold {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			v, err := c.Embed(ctx, t)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	model, err := c.lifecycle.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return model.EmbedBatch(ctx, texts)
}

// Stats returns a snapshot of cache performance counters.
func (c *Cache) Stats() Stats {
	status := c.lifecycle.Status()
	return Stats{
		LRUHits:     c.lruHits.Load(),
		DiskHits:    c.diskHits.Load(),
		Misses:      c.misses.Load(),
		Coalesced:   c.coalesced.Load(),
		LRUSize:     c.lru.len(),
		LRUCapacity: c.lru.capacity,
		ModelLoaded: status.Loaded,
	}
}

// Clear empties the in-memory LRU tier (the disk tier is left intact).
func (c *Cache) Clear() {
	c.lru.clear()
}
