// Package local registers a deterministic, dependency-free embedder: a
// feature-hashed bag-of-tokens vector. It exists so the engine is usable
// (recall's vector signal degrades to a crude lexical-overlap proxy rather
// than disappearing) without any external embedding provider configured.
package local

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	registryembed "github.com/chirino/souvenir/internal/registry/embed"
)

const (
	modelName = "local-hashing-v1"
	dimension = 384
)

func init() {
	registryembed.Register(registryembed.Plugin{
		Name: "local",
		Loader: func(_ context.Context) (registryembed.Embedder, error) {
			return &Embedder{}, nil
		},
	})
}

// Embedder is a feature-hashed bag-of-tokens embedder with no external
// dependencies. It is deterministic: the same text always maps to the same
// unit vector, so it is useful for tests and offline operation.
type Embedder struct{}

func (e *Embedder) ModelName() string { return modelName }
func (e *Embedder) Dimension() int    { return dimension }

func (e *Embedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = embedOne(text)
	}
	return results, nil
}

func embedOne(text string) []float32 {
	vector := make([]float32, dimension)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		vector[int(h.Sum64()%uint64(dimension))] += 1
	}
	var norm float32
	for _, v := range vector {
		norm += v * v
	}
	if norm == 0 {
		return vector
	}
	inv := 1 / float32(math.Sqrt(float64(norm)))
	for i := range vector {
		vector[i] *= inv
	}
	return vector
}

func tokenize(text string) []string {
	text = strings.TrimSpace(strings.ToLower(text))
	if text == "" {
		return nil
	}
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsNumber(r))
	})
}

var _ registryembed.Embedder = (*Embedder)(nil)
