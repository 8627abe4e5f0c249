package runtime

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamitools/kami/pkg/engine"
	"github.com/kamitools/kami/pkg/types"
)

func entryFor(path string) CachedComponent {
	return CachedComponent{Artifact: new(engine.Module), Policy: types.DefaultPolicy(), WasmPath: path}
}

func TestCacheGetMiss(t *testing.T) {
	c := NewComponentCache(4)
	_, ok := c.Get(types.MustToolID("dev.test.absent"))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheInsertAndGet(t *testing.T) {
	c := NewComponentCache(4)
	id := types.MustToolID("dev.test.echo")
	c.Insert(id, entryFor("/a/echo.wasm"))

	entry, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, "/a/echo.wasm", entry.WasmPath)
	assert.Equal(t, 1, c.Len())
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewComponentCache(2)
	a := types.MustToolID("dev.test.a")
	b := types.MustToolID("dev.test.b")
	d := types.MustToolID("dev.test.d")

	c.Insert(a, entryFor("a"))
	c.Insert(b, entryFor("b"))

	// Touch a so b becomes the LRU.
	_, ok := c.Get(a)
	require.True(t, ok)

	c.Insert(d, entryFor("d"))

	_, ok = c.Get(b)
	assert.False(t, ok, "b was least recently used and must be evicted")
	_, ok = c.Get(a)
	assert.True(t, ok)
	_, ok = c.Get(d)
	assert.True(t, ok)
}

func TestCacheReplaceDoesNotCountAgainstCapacity(t *testing.T) {
	c := NewComponentCache(2)
	a := types.MustToolID("dev.test.a")
	b := types.MustToolID("dev.test.b")

	c.Insert(a, entryFor("a1"))
	c.Insert(b, entryFor("b"))
	c.Insert(a, entryFor("a2"))

	assert.Equal(t, 2, c.Len())
	entry, ok := c.Get(a)
	require.True(t, ok)
	assert.Equal(t, "a2", entry.WasmPath)
	_, ok = c.Get(b)
	assert.True(t, ok, "replacing a must not evict b")
}

func TestCacheInsertTouchesMRU(t *testing.T) {
	c := NewComponentCache(2)
	a := types.MustToolID("dev.test.a")
	b := types.MustToolID("dev.test.b")
	d := types.MustToolID("dev.test.d")

	c.Insert(a, entryFor("a"))
	c.Insert(b, entryFor("b"))
	// Re-inserting a promotes it; b becomes LRU.
	c.Insert(a, entryFor("a2"))
	c.Insert(d, entryFor("d"))

	_, ok := c.Get(b)
	assert.False(t, ok)
}

func TestCacheInvalidate(t *testing.T) {
	c := NewComponentCache(2)
	id := types.MustToolID("dev.test.a")
	c.Insert(id, entryFor("a"))
	c.Invalidate(id)
	_, ok := c.Get(id)
	assert.False(t, ok)

	// Invalidating an absent key is a no-op.
	c.Invalidate(types.MustToolID("dev.test.ghost"))
}

func TestCacheClear(t *testing.T) {
	c := NewComponentCache(4)
	c.Insert(types.MustToolID("dev.test.a"), entryFor("a"))
	c.Insert(types.MustToolID("dev.test.b"), entryFor("b"))
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCacheBoundProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("len never exceeds capacity under arbitrary op sequences", prop.ForAll(
		func(capacity uint8, ops []uint8) bool {
			cap := int(capacity%8) + 1
			c := NewComponentCache(cap)
			for _, op := range ops {
				id := types.MustToolID(fmt.Sprintf("dev.test.t%d", op%16))
				switch op % 3 {
				case 0:
					c.Insert(id, entryFor("x"))
				case 1:
					c.Get(id)
				case 2:
					c.Invalidate(id)
				}
				if c.Len() > cap {
					return false
				}
			}
			return true
		},
		gen.UInt8(),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
