package roles

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/izposoja/internal/model"
)

// Runs only when IZPOSOJA_TEST_REDIS points at a disposable Redis server.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("IZPOSOJA_TEST_REDIS")
	if addr == "" {
		t.Skip("IZPOSOJA_TEST_REDIS not set")
	}

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())

	cache := NewRedisCache(rdb, time.Minute)
	t.Cleanup(func() { cache.Delete(ctx, 4242) })

	snap, err := cache.Get(ctx, 4242)
	require.NoError(t, err)
	assert.Nil(t, snap)

	gen, err := cache.Generation(ctx, 4242)
	require.NoError(t, err)
	snapshot := &Snapshot{
		UserID:      4242,
		Assignments: []model.RoleAssignment{{Role: model.RoleOwner, Department: strPtr("Physics")}},
		Departments: testDepartments,
	}
	require.NoError(t, cache.Set(ctx, snapshot, gen))

	snap, err = cache.Get(ctx, 4242)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.True(t, NewResolver(*snap).OwnsDepartment(1))

	require.NoError(t, cache.Delete(ctx, 4242))
	snap, err = cache.Get(ctx, 4242)
	require.NoError(t, err)
	assert.Nil(t, snap)

	// A load that started before the delete must not repopulate the cache.
	assert.ErrorIs(t, cache.Set(ctx, snapshot, gen), ErrSuperseded)
	snap, err = cache.Get(ctx, 4242)
	require.NoError(t, err)
	assert.Nil(t, snap)

	next, err := cache.Generation(ctx, 4242)
	require.NoError(t, err)
	assert.Greater(t, next, gen)
}
