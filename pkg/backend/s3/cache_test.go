package s3

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectCache(t *testing.T) {
	c := newObjectCache()
	hash := strings.Repeat("0f", 32)

	c.replace([]objectEntry{
		{Name: hash + ".png", Size: 1},
		{Name: hash + ".gif", Size: 2},
		{Name: "notes.txt", Size: 3},
	})
	assert.Equal(t, 3, c.len())

	first, ok := c.first(hash)
	assert.True(t, ok)
	assert.Equal(t, hash+".png", first.Name)

	// Foreign names are listed but never resolve as a hash.
	_, ok = c.first("")
	assert.False(t, ok)

	c.add(objectEntry{Name: hash + ".png", Size: 99})
	assert.Equal(t, 3, c.len(), "re-adding a known name is a no-op")

	c.evict(hash + ".png")
	first, ok = c.first(hash)
	assert.True(t, ok)
	assert.Equal(t, hash+".gif", first.Name)

	entries := c.entries(hash)
	entries[0].Name = "mutated"
	first, _ = c.first(hash)
	assert.Equal(t, hash+".gif", first.Name, "entries returns a copy")

	c.evict(hash + ".gif")
	_, ok = c.first(hash)
	assert.False(t, ok)
	assert.Len(t, c.snapshot(), 1)
}
