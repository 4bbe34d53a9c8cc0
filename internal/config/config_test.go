package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsUsable(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "sqlite", cfg.DatastoreType)
	assert.Greater(t, cfg.TopK, 0)
	assert.Greater(t, cfg.DefaultBudgetTokens, uint32(0))
}

func TestParseComponentWeights(t *testing.T) {
	weights := ParseComponentWeights("task=1.2, durable = 0.5,bad,broken=notanumber")
	assert.Equal(t, map[string]float64{"task": 1.2, "durable": 0.5}, weights)
}

func TestWithContextRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(t.Context(), &cfg)
	assert.Same(t, &cfg, FromContext(ctx))
}
