package mlp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResponseCacheGetSet(t *testing.T) {
	c := newResponseCache(time.Hour)

	_, ok := c.get("k")
	assert.False(t, ok)

	c.set("k", []byte("v"))
	body, ok := c.get("k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), body)
}

func TestResponseCacheExpires(t *testing.T) {
	c := newResponseCache(10 * time.Millisecond)
	c.set("k", []byte("v"))
	time.Sleep(20 * time.Millisecond)

	_, ok := c.get("k")
	assert.False(t, ok)
}

func TestResponseCacheInvalidatePrefix(t *testing.T) {
	c := newResponseCache(time.Hour)
	c.set("GET /v1/groups", []byte("a"))
	c.set("GET /v1/groups/1", []byte("b"))
	c.set("GET /v1/fields", []byte("c"))

	c.invalidatePrefix("GET /v1/groups")

	_, ok := c.get("GET /v1/groups")
	assert.False(t, ok)
	_, ok = c.get("GET /v1/fields")
	assert.True(t, ok)
}

func TestResponseCacheFlush(t *testing.T) {
	c := newResponseCache(time.Hour)
	c.set("k", []byte("v"))
	c.flush()

	_, ok := c.get("k")
	assert.False(t, ok)
}
