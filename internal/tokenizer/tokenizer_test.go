package tokenizer_test

import (
	"strings"
	"testing"

	"github.com/chirino/souvenir/internal/tokenizer"
	"github.com/stretchr/testify/assert"
)

func TestCount(t *testing.T) {
	assert.EqualValues(t, 0, tokenizer.Count(""))
	assert.EqualValues(t, 1, tokenizer.Count("a"))
	assert.EqualValues(t, 1, tokenizer.Count("abcd"))
	assert.EqualValues(t, 2, tokenizer.Count("abcde"))
	assert.EqualValues(t, 25, tokenizer.Count(strings.Repeat("x", 100)))
}
