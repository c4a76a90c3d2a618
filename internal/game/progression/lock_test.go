package progression

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockArena_AcquireRelease(t *testing.T) {
	arena := NewLockArena(time.Second)

	release, err := arena.Acquire(context.Background(), 1)
	require.NoError(t, err)
	release()

	release, err = arena.Acquire(context.Background(), 1)
	require.NoError(t, err)
	release()
}

func TestLockArena_TimeoutWhileHeld(t *testing.T) {
	arena := NewLockArena(50 * time.Millisecond)

	release, err := arena.Acquire(context.Background(), 1)
	require.NoError(t, err)
	defer release()

	_, err = arena.Acquire(context.Background(), 1)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestLockArena_KeysIndependent(t *testing.T) {
	arena := NewLockArena(50 * time.Millisecond)

	release1, err := arena.Acquire(context.Background(), 1)
	require.NoError(t, err)
	defer release1()

	release2, err := arena.Acquire(context.Background(), 2)
	require.NoError(t, err)
	release2()
}

func TestLockArena_ContextCancellation(t *testing.T) {
	arena := NewLockArena(10 * time.Second)

	release, err := arena.Acquire(context.Background(), 1)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = arena.Acquire(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLockArena_ReleaseIdempotent(t *testing.T) {
	arena := NewLockArena(time.Second)

	release, err := arena.Acquire(context.Background(), 1)
	require.NoError(t, err)
	release()
	release() // second call must not unlock someone else's hold

	release2, err := arena.Acquire(context.Background(), 1)
	require.NoError(t, err)
	defer release2()
}

func TestLockArena_Serializes(t *testing.T) {
	arena := NewLockArena(5 * time.Second)
	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := arena.Acquire(context.Background(), 1)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "at most one holder per key")
}
