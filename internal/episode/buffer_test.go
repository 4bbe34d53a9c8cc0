package episode_test

import (
	"testing"
	"time"

	"github.com/chirino/souvenir/internal/episode"
	"github.com/chirino/souvenir/internal/model"
	"github.com/stretchr/testify/assert"
)

func ep(content string) model.Episode {
	return model.Episode{
		SessionID: "s1",
		Timestamp: time.Now().UTC(),
		Type:      model.EpisodeConversation,
		Content:   content,
	}
}

func TestBufferPushDrainSize(t *testing.T) {
	var b episode.Buffer
	assert.Equal(t, 0, b.Size())

	assert.Equal(t, 1, b.Push(ep("a")))
	assert.Equal(t, 2, b.Push(ep("b")))
	assert.Equal(t, 2, b.Size())

	drained := b.Drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, "a", drained[0].Content)
	assert.Equal(t, "b", drained[1].Content)
	assert.Equal(t, 0, b.Size())
}

func TestBufferDrainEmpty(t *testing.T) {
	var b episode.Buffer
	assert.Nil(t, b.Drain())
}

func TestBufferDrainDoesNotAliasSubsequentPushes(t *testing.T) {
	var b episode.Buffer
	b.Push(ep("a"))
	drained := b.Drain()
	b.Push(ep("b"))
	assert.Len(t, drained, 1)
	assert.Equal(t, "a", drained[0].Content)
}
