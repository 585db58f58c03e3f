package pmutex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMutexExcludesConcurrentIncrements(t *testing.T) {
	var m Mutex
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, m.Lock())
			counter++
			require.NoError(t, m.Unlock())
		}()
	}
	wg.Wait()

	require.Equal(t, 100, counter)
}

func TestMutexTryLock(t *testing.T) {
	var m Mutex
	require.NoError(t, m.Lock())

	ok, err := m.TryLock()
	require.NoError(t, err)
	require.False(t, ok, "TryLock must fail while the mutex is held")

	require.NoError(t, m.Unlock())

	ok, err = m.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, m.Unlock())
}

func TestMutexZeroValueBindsLazily(t *testing.T) {
	var m Mutex
	require.Zero(t, m.runID)
	require.NoError(t, m.Init())
	require.NotZero(t, m.runID)
}

func TestMutexRebindsAcrossSimulatedRuns(t *testing.T) {
	var m Mutex
	require.NoError(t, m.Init())
	first := m.ptr

	// Simulate reopening the pool in a fresh process: the run id no
	// longer matches, so the next use must rebind rather than trust the
	// stale pointer.
	m.runID = processRunID - 1
	require.NoError(t, m.Lock())
	require.NoError(t, m.Unlock())
	require.NotEqual(t, first, uint64(0))
	require.Equal(t, processRunID, m.runID)
}
