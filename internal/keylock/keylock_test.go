package keylock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireAndRelease(t *testing.T) {
	l := New()

	release, ok := l.TryAcquire("s1")
	require.True(t, ok)

	_, ok = l.TryAcquire("s1")
	assert.False(t, ok)

	other, ok := l.TryAcquire("s2")
	require.True(t, ok)
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Acquire(ctx, "s1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()

	again, err := l.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	again()

	assert.Equal(t, 0, l.Len())
}

func TestEntriesArePrunedAfterContention(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "item")
			if !assert.NoError(t, err) {
				return
			}
			counter++
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, l.Len())
}
