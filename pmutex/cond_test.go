package pmutex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCondSignalWakesWaiter(t *testing.T) {
	var c Cond
	woken := make(chan struct{})

	require.NoError(t, c.Lock())
	go func() {
		require.NoError(t, c.Lock())
		require.NoError(t, c.Wait())
		require.NoError(t, c.Unlock())
		close(woken)
	}()
	require.NoError(t, c.Unlock())

	// Give the waiter a chance to reach Wait (and release the lock
	// inside sync.Cond.Wait) before signaling.
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, c.Lock())
	require.NoError(t, c.Signal())
	require.NoError(t, c.Unlock())

	select {
	case <-woken:
	case <-time.After(time.Second):
		t.Fatal("waiter was never woken")
	}
}

func TestCondTimedWaitExpires(t *testing.T) {
	var c Cond
	require.NoError(t, c.Lock())
	err := c.TimedWait(time.Now().Add(20 * time.Millisecond))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, c.Unlock())
}
