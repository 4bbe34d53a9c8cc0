// Package none registers the "none" embedder backend: a sentinel with
// dimension 0 that disables the vector recall signal and the compaction
// dedup pass entirely, for deployments that don't want embedding costs.
package none

import (
	"context"

	registryembed "github.com/chirino/souvenir/internal/registry/embed"
)

func init() {
	registryembed.Register(registryembed.Plugin{
		Name: "none",
		Loader: func(_ context.Context) (registryembed.Embedder, error) {
			return disabled{}, nil
		},
	})
}

type disabled struct{}

func (disabled) ModelName() string { return "none" }
func (disabled) Dimension() int    { return 0 }
func (disabled) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

var _ registryembed.Embedder = disabled{}
