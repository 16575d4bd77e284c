package transition

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AppendAndQuery(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, row := range []Transition{
		tr(2, StatusArrived, 3),
		tr(1, StatusInSession, 10),
		tr(1, StatusArrived, 0),
		tr(3, StatusArrived, 0),
	} {
		_, err := store.Append(ctx, row)
		require.NoError(t, err)
	}

	got, err := store.Query(ctx, []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, int64(1), got[0].AppointmentID)
	assert.Equal(t, StatusArrived, got[0].Status)
	assert.Equal(t, StatusInSession, got[1].Status)
	assert.Equal(t, int64(2), got[2].AppointmentID)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestMemoryStore_QueryEmptySet(t *testing.T) {
	store := NewMemoryStore()
	_, _ = store.Append(context.Background(), tr(1, StatusArrived, 0))

	got, err := store.Query(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_DuplicatesAreKept(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	row := tr(1, StatusArrived, 0)
	id1, err := store.Append(ctx, row)
	require.NoError(t, err)
	id2, err := store.Append(ctx, row)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, store.Len())
}

func TestMemoryStore_Averages(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	avg, err := store.AverageArrivedToSeenMinutes(ctx)
	require.NoError(t, err)
	assert.Equal(t, NoData, avg)

	_, _ = store.Append(ctx, tr(1, StatusArrived, 100))
	_, _ = store.Append(ctx, tr(1, StatusInSession, 130))

	avg, err = store.AverageArrivedToSeenMinutes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30.0, avg)

	first, err := store.FirstMatchArrivedToSeenMinutes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30.0, first)
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.Append(context.Background(), tr(int64(i%5), StatusArrived, i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, store.Len())
}
