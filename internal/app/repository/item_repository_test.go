package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sifan077/PowerShare/internal/app/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rowCounter stands in for the items table.
type rowCounter struct {
	rows  map[string]bool
	calls int
	err   error
}

func (c *rowCounter) count(_ context.Context, id string) (int64, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	if c.rows[id] {
		return 1, nil
	}
	return 0, nil
}

func warmedRepository(rows *rowCounter, known ...string) *GormItemRepository {
	r := newItemRepository(1000, 0.01)
	r.count = rows.count
	for _, id := range known {
		r.known.AddString(id)
	}
	r.warmed = true
	return r
}

func TestItemRepository_ExistsFindsItemsWrittenElsewhere(t *testing.T) {
	rows := &rowCounter{rows: map[string]bool{"42": true}}
	r := warmedRepository(rows, "42")
	ctx := context.Background()

	// Inserted directly into the table after the filter was warmed.
	rows.rows["77"] = true

	ok, err := r.Exists(ctx, "77")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, r.known.TestString("77"))

	ok, err = r.Exists(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestItemRepository_ExistsCachesConfirmedMisses(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	store := cache.NewMemory().WithClock(func() time.Time { return now })
	rows := &rowCounter{rows: map[string]bool{}}
	r := warmedRepository(rows).WithMissCache(store, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := r.Exists(ctx, "404")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, rows.calls)

	// Once the miss expires the table is asked again.
	rows.rows["404"] = true
	now = now.Add(2 * time.Minute)
	ok, err := r.Exists(ctx, "404")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, rows.calls)
}

func TestItemRepository_ExistsBeforeWarmAlwaysQueries(t *testing.T) {
	rows := &rowCounter{rows: map[string]bool{"5": true}}
	r := newItemRepository(1000, 0.01)
	r.count = rows.count

	ok, err := r.Exists(context.Background(), "5")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Exists(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, rows.calls)
}

func TestItemRepository_ExistsPropagatesErrors(t *testing.T) {
	rows := &rowCounter{err: errors.New("connection reset")}
	r := warmedRepository(rows).WithMissCache(cache.NewMemory(), 0)

	_, err := r.Exists(context.Background(), "9")
	require.Error(t, err)

	// Failures are not remembered as misses.
	rows.err = nil
	rows.rows = map[string]bool{"9": true}
	ok, err := r.Exists(context.Background(), "9")
	require.NoError(t, err)
	assert.True(t, ok)
}
