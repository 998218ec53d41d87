package ids

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextIDInRange(t *testing.T) {
	a := NewWithSource(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		id := a.NextID()
		assert.GreaterOrEqual(t, id, minItemID)
		assert.LessOrEqual(t, id, int64(^uint64(0)>>1))
	}
}

func TestNextIDDeterministicWithSeed(t *testing.T) {
	a1 := NewWithSource(rand.NewSource(42))
	a2 := NewWithSource(rand.NewSource(42))
	assert.Equal(t, a1.NextID(), a2.NextID())
}

func TestNextRemoteFilenameDefaultExtension(t *testing.T) {
	a := NewWithSource(rand.NewSource(7))
	name := a.NextRemoteFilename("")
	assert.Len(t, name, 8) // 4 letters + '.' + "mp3"
	assert.Regexp(t, `^[A-Z]{4}\.mp3$`, name)
}

func TestNextRemoteFilenameLowercasesExtension(t *testing.T) {
	a := NewWithSource(rand.NewSource(7))
	name := a.NextRemoteFilename("M4R")
	assert.Regexp(t, `^[A-Z]{4}\.m4r$`, name)
}

func TestNextUUIDIsUnique(t *testing.T) {
	a := New()
	u1 := a.NextUUID()
	u2 := a.NextUUID()
	assert.NotEqual(t, u1, u2)
	assert.Len(t, u1, 36)
}
