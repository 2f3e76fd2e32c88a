package embedding

import (
	"context"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/engramhq/engram/pkg/vecmath"
)

const (
	LocalModelVersion   = "local"
	LocalModelDimension = 384
)

func init() {
	RegisterModel(Metadata{
		Name:       "Local Deterministic",
		Version:    LocalModelVersion,
		Dimensions: LocalModelDimension,
		Default:    true,
	}, newLocalModel)
}

// localModel is a dependency-free, fully deterministic embedder: each word
// in the input is hashed into a bucket of the output vector and accumulated,
// then the result is L2-normalized. It produces stable, comparable vectors
// without any model weights, for tests and for operation with no configured
// external embedding provider.
type localModel struct {
	dim int
}

func newLocalModel() (Embedder, error) {
	return &localModel{dim: LocalModelDimension}, nil
}

func (m *localModel) Name() string   { return "Local Deterministic" }
func (m *localModel) Dimension() int { return m.dim }
func (m *localModel) Close() error   { return nil }

func (m *localModel) Embed(_ context.Context, text string) ([]float32, error) {
	return m.embedOne(text), nil
}

func (m *localModel) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.embedOne(t)
	}
	return out, nil
}

func (m *localModel) embedOne(text string) []float32 {
	v := make([]float32, m.dim)
	words := strings.Fields(text)
	if len(words) == 0 {
		return v
	}
	for _, w := range words {
		lw := strings.ToLower(w)
		h1 := xxhash.Sum64String(lw)
		h2 := xxhash.Sum64String(lw + "\x00salt")
		bucket := int(h1 % uint64(m.dim))
		sign := float32(1)
		if h2%2 == 0 {
			sign = -1
		}
		weight := float32(1) + float32(h2%7)/7
		v[bucket] += sign * weight
	}
	return vecmath.Normalize(v)
}
