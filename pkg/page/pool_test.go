package page_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foster-btree/core/pkg/page"
)

func TestPoolAllocateDerefRelease(t *testing.T) {
	pool := page.NewPool(256)

	id, err := pool.Allocate()
	require.NoError(t, err)
	assert.NotZero(t, id)

	p, err := pool.Deref(id)
	require.NoError(t, err)
	assert.EqualValues(t, 256, p.HeapEnd())

	require.NoError(t, pool.Release(id))

	_, err = pool.Deref(id)
	assert.Error(t, err)
}

func TestPoolReusesReleasedIDs(t *testing.T) {
	pool := page.NewPool(64)

	first, err := pool.Allocate()
	require.NoError(t, err)
	require.NoError(t, pool.Release(first))

	second, err := pool.Allocate()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPoolManyPagesSurviveGrowth(t *testing.T) {
	pool := page.NewPool(32)

	ids := make([]page.ID, 0, 200)
	for i := 0; i < 200; i++ {
		id, err := pool.Allocate()
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, id := range ids {
		_, err := pool.Deref(id)
		assert.NoError(t, err)
	}
}
