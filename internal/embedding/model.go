// Package embedding defines the Embedder capability and its implementations:
// a deterministic local embedder (default, offline-friendly) and an
// OpenAI-compatible REST embedder.
package embedding

import (
	"context"
	"fmt"
	"sync"
)

// Embedder turns text into fixed-width, unit-norm float32 vectors.
type Embedder interface {
	// Name returns a human-readable identifier (e.g. "local-deterministic").
	Name() string
	// Dimension returns the embedding vector width.
	Dimension() int
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Close releases model resources.
	Close() error
}

// Metadata describes a registered embedder for introspection/config.
type Metadata struct {
	Name       string
	Version    string
	Dimensions int
	Default    bool
}

// Factory constructs a new Embedder instance.
type Factory func() (Embedder, error)

// Registry provides embedder lookup by version string.
type Registry struct {
	mu       sync.RWMutex
	factory  map[string]Factory
	metadata map[string]Metadata
	def      string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factory:  make(map[string]Factory),
		metadata: make(map[string]Metadata),
	}
}

// Register adds a factory for the given version to the registry.
func (r *Registry) Register(meta Metadata, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factory[meta.Version] = factory
	r.metadata[meta.Version] = meta
	if meta.Default {
		r.def = meta.Version
	}
}

// Get constructs the embedder registered under version.
func (r *Registry) Get(version string) (Embedder, error) {
	r.mu.RLock()
	factory, ok := r.factory[version]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown embedding model version: %s", version)
	}
	return factory()
}

// Default returns the version marked as default, or "" if none is.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// List returns metadata for every registered model.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.metadata))
	for _, m := range r.metadata {
		out = append(out, m)
	}
	return out
}

// DefaultRegistry is the global embedder registry populated by each
// implementation's init().
var DefaultRegistry = NewRegistry()

func RegisterModel(meta Metadata, factory Factory) {
	DefaultRegistry.Register(meta, factory)
}

func GetModel(version string) (Embedder, error) {
	return DefaultRegistry.Get(version)
}

func GetDefaultModel() string {
	return DefaultRegistry.Default()
}

func ListModels() []Metadata {
	return DefaultRegistry.List()
}
