// Package ids allocates the 64-bit item/entity identifiers, four-letter
// remote filenames, and textual playlist-row uuids the catalog needs.
// Identifiers and filenames come from a swappable source, so tests can
// make them deterministic; uuids always come from google/uuid.
package ids

import (
	"math/rand"

	"github.com/google/uuid"
)

// minItemID is 10^18; item and entity identifiers are drawn from
// [minItemID, math.MaxInt64] to avoid colliding with vendor-generated ids.
const minItemID int64 = 1_000_000_000_000_000_000

const defaultExtension = "mp3"

// Allocator generates identifiers, remote filenames, and uuids. The zero
// value is not usable; construct one with New or NewWithSource.
type Allocator struct {
	rng *rand.Rand
}

// New returns an Allocator seeded from the runtime's default source.
func New() *Allocator {
	return &Allocator{rng: rand.New(rand.NewSource(rand.Int63()))}
}

// NewWithSource returns an Allocator driven by src, for deterministic tests.
func NewWithSource(src rand.Source) *Allocator {
	return &Allocator{rng: rand.New(src)}
}

// NextID returns a uniform random int64 in [10^18, 2^63-1]. Callers are
// responsible for retrying on a primary-key collision within the current
// merge transaction.
func (a *Allocator) NextID() int64 {
	span := int64(^uint64(0)>>1) - minItemID
	return minItemID + a.rng.Int63n(span+1)
}

// NextRemoteFilename returns four uppercase letters followed by "." and
// ext lowercased; ext defaults to "mp3" when empty.
func (a *Allocator) NextRemoteFilename(ext string) string {
	if ext == "" {
		ext = defaultExtension
	}
	letters := make([]byte, 4)
	for i := range letters {
		letters[i] = byte('A' + a.rng.Intn(26))
	}
	return string(letters) + "." + lower(ext)
}

// NextUUID returns a fresh textual uuid for a ContainerItem row.
func (a *Allocator) NextUUID() string {
	return uuid.New().String()
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}
