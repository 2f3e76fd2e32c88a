package embedcache

import (
	"context"
	"sync"
	"time"

	"github.com/engramhq/engram/internal/embedding"
	"github.com/engramhq/engram/internal/engramerr"
	"github.com/rs/zerolog"
)

const defaultLoadTimeout = 60 * time.Second

// Lifecycle manages the lazy, background loading and idle-unloading of an
// Embedder, grounded on memento/embed.py's module-level ready-gate
// (threading.Event), double-checked-locked background load, and
// threading.Timer-based idle unload — reimplemented with a closed channel as
// the ready-gate and a *time.Timer guarded by a mutex for the idle timer.
type Lifecycle struct {
	factory embedding.Factory
	log     zerolog.Logger

	mu          sync.Mutex
	model       embedding.Embedder
	ready       chan struct{}
	loadErr     error
	loading     bool
	idleTimeout time.Duration
	idleTimer   *time.Timer
	lastUsed    time.Time
}

// NewLifecycle creates a Lifecycle around factory. idleTimeout<=0 disables
// idle-unload.
func NewLifecycle(factory embedding.Factory, idleTimeout time.Duration, log zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		factory:     factory,
		log:         log.With().Str("component", "embed-lifecycle").Logger(),
		idleTimeout: idleTimeout,
	}
}

// Acquire blocks (with a bounded timeout) until the model is loaded and ready,
// triggering a background load on first use, and returns it. Every call
// resets the idle-unload timer.
func (l *Lifecycle) Acquire(ctx context.Context) (embedding.Embedder, error) {
	l.mu.Lock()
	if l.ready == nil {
		l.ready = make(chan struct{})
	}
	ready := l.ready
	if !l.loading && l.model == nil && l.loadErr == nil {
		l.loading = true
		go l.load(ready)
	}
	l.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return nil, engramerr.WrapEmbedding(ctx.Err(), "wait for embedding model")
	case <-time.After(defaultLoadTimeout):
		return nil, engramerr.EmbeddingErrorf("timed out waiting for embedding model to load")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loadErr != nil {
		return nil, engramerr.WrapEmbedding(l.loadErr, "load embedding model")
	}
	l.touchLocked()
	return l.model, nil
}

func (l *Lifecycle) load(ready chan struct{}) {
	model, err := l.factory()

	l.mu.Lock()
	l.loading = false
	if err != nil {
		l.loadErr = err
		l.log.Error().Err(err).Msg("embedding model failed to load")
	} else {
		l.model = model
		l.log.Info().Str("model", model.Name()).Msg("embedding model loaded")
	}
	l.mu.Unlock()

	close(ready)
}

// touchLocked resets the idle timer. Caller must hold l.mu.
func (l *Lifecycle) touchLocked() {
	l.lastUsed = time.Now()
	if l.idleTimeout <= 0 {
		return
	}
	if l.idleTimer == nil {
		l.idleTimer = time.AfterFunc(l.idleTimeout, l.onIdle)
	} else {
		l.idleTimer.Reset(l.idleTimeout)
	}
}

func (l *Lifecycle) onIdle() {
	l.log.Info().Msg("embedding model idle timeout reached, unloading")
	l.Unload(false)
}

// Unload releases the model. If force is false and the model is not loaded,
// this is a no-op.
func (l *Lifecycle) Unload(force bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.model == nil && !force {
		return
	}
	if l.model != nil {
		_ = l.model.Close()
	}
	l.model = nil
	l.loadErr = nil
	l.loading = false
	l.ready = nil
	if l.idleTimer != nil {
		l.idleTimer.Stop()
	}
}

// Status reports lifecycle introspection fields.
type Status struct {
	Loaded          bool
	IdleTimeout     time.Duration
	SecondsIdle     float64
}

func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Status{
		Loaded:      l.model != nil,
		IdleTimeout: l.idleTimeout,
	}
	if !l.lastUsed.IsZero() {
		s.SecondsIdle = time.Since(l.lastUsed).Seconds()
	}
	return s
}
