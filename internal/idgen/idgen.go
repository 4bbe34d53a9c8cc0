// Package idgen generates the 26-character, lexicographically sortable ids
// used for episodes and memories. It wraps oklog/ulid with
// a monotonic entropy source so ids minted within the same process and the
// same millisecond still sort by creation order.
package idgen

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy io.Reader = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a new sortable id for the given timestamp.
func New(at time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

// Timestamp extracts the creation instant encoded in a sortable id minted by
// New. It returns the zero time if id is not a valid ULID.
func Timestamp(id string) time.Time {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(parsed.Time())
}
