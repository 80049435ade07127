package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicevault/pkg/testutil"
)

func TestMemoryLockerExcludesSameIdentifier(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(time.Minute)

	release, err := l.Acquire(ctx, "aaaaaaaa-1111-2222-3333-444444444444")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "AAAAAAAA-1111-2222-3333-444444444444")
	assert.ErrorIs(t, err, ErrHeld, "identifiers compare case-insensitively")

	_, err = l.Acquire(ctx, "BBBBBBBB-1111-2222-3333-444444444444")
	assert.NoError(t, err)

	require.NoError(t, release(ctx))
	_, err = l.Acquire(ctx, "AAAAAAAA-1111-2222-3333-444444444444")
	assert.NoError(t, err)
}

func TestMemoryLockerExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 18, 9, 0, 0, 0, time.UTC)
	l := NewMemory(time.Minute)
	l.now = func() time.Time { return now }

	staleRelease, err := l.Acquire(ctx, "AAAAAAAA-1111-2222-3333-444444444444")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = l.Acquire(ctx, "AAAAAAAA-1111-2222-3333-444444444444")
	require.NoError(t, err)

	require.NoError(t, staleRelease(ctx))
	_, err = l.Acquire(ctx, "AAAAAAAA-1111-2222-3333-444444444444")
	assert.ErrorIs(t, err, ErrHeld, "stale release must not free the new holder")
}

func TestMemoryLockerConcurrentAcquire(t *testing.T) {
	testutil.Given(t, "many submissions of one identifier racing", func(t *testing.T) {
		l := NewMemory(time.Minute)
		const racers = 16
		var (
			wg      sync.WaitGroup
			winners atomic.Int32
		)

		testutil.When(t, "they all acquire at once", func(t *testing.T) {
			for range racers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := l.Acquire(context.Background(), "CCCCCCCC-1111-2222-3333-444444444444"); err == nil {
						winners.Add(1)
					}
				}()
			}
			wg.Wait()
		})

		testutil.Then(t, "exactly one holds the lock", func(t *testing.T) {
			assert.Equal(t, int32(1), winners.Load())
		})
	})
}
