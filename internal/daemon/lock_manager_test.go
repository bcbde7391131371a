package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockManager_AcquireOnAbsentSucceeds(t *testing.T) {
	m := NewLockManager()
	defer m.Close()

	acquired, expiresAt, reason := m.Acquire(context.Background(), "r", "a", 5*time.Second, false)
	assert.True(t, acquired)
	assert.Empty(t, reason)
	assert.True(t, expiresAt.After(time.Now()))
}

func TestLockManager_SameHolderRenews(t *testing.T) {
	m := NewLockManager()
	defer m.Close()

	m.Acquire(context.Background(), "r", "a", 5*time.Second, false)
	acquired, _, _ := m.Acquire(context.Background(), "r", "a", 5*time.Second, false)
	assert.True(t, acquired)
}

func TestLockManager_DifferentHolderDeniedWithoutWait(t *testing.T) {
	m := NewLockManager()
	defer m.Close()

	m.Acquire(context.Background(), "r", "a", 5*time.Second, false)
	acquired, _, holder := m.Acquire(context.Background(), "r", "b", 5*time.Second, false)
	assert.False(t, acquired)
	assert.Equal(t, "a", holder)
}

func TestLockManager_ReleaseByNonHolderFails(t *testing.T) {
	m := NewLockManager()
	defer m.Close()

	m.Acquire(context.Background(), "r", "a", 5*time.Second, false)
	released, reason := m.Release("r", "b")
	assert.False(t, released)
	assert.Equal(t, "not-holder", reason)
}

func TestLockManager_SeedScenario_ContentionThenRelease(t *testing.T) {
	m := NewLockManager()
	defer m.Close()

	acquired, _, _ := m.Acquire(context.Background(), "r", "a", 5*time.Second, false)
	require.True(t, acquired)

	acquired, _, holder := m.Acquire(context.Background(), "r", "b", 5*time.Second, false)
	require.False(t, acquired)
	require.Equal(t, "a", holder)

	released, _ := m.Release("r", "a")
	require.True(t, released)

	acquired, _, _ = m.Acquire(context.Background(), "r", "b", 5*time.Second, false)
	assert.True(t, acquired)
}

func TestLockManager_WaitDeliversFIFO(t *testing.T) {
	m := NewLockManager()
	defer m.Close()

	m.Acquire(context.Background(), "r", "a", 200*time.Millisecond, false)

	type result struct {
		holder string
		order  int
	}
	results := make(chan result, 2)

	go func() {
		acquired, _, _ := m.Acquire(context.Background(), "r", "b", 2*time.Second, true)
		if acquired {
			results <- result{holder: "b"}
		}
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		acquired, _, _ := m.Acquire(context.Background(), "r", "c", 2*time.Second, true)
		if acquired {
			results <- result{holder: "c"}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	m.Release("r", "a")

	first := <-results
	assert.Equal(t, "b", first.holder)
}

func TestLockManager_WaiterDeadlineExceeded(t *testing.T) {
	m := NewLockManager()
	defer m.Close()

	m.Acquire(context.Background(), "r", "a", 5*time.Second, false)
	acquired, _, reason := m.Acquire(context.Background(), "r", "b", 50*time.Millisecond, true)
	assert.False(t, acquired)
	assert.Equal(t, "deadline", reason)
}

func TestLockManager_List_OmitsExpired(t *testing.T) {
	m := NewLockManager()
	defer m.Close()

	m.Acquire(context.Background(), "r", "a", 30*time.Millisecond, false)
	time.Sleep(60 * time.Millisecond)

	locks := m.List()
	assert.Empty(t, locks)
}

func TestLockManager_ReleaseAllHeldBy(t *testing.T) {
	m := NewLockManager()
	defer m.Close()

	m.Acquire(context.Background(), "r1", "a", 5*time.Second, false)
	m.Acquire(context.Background(), "r2", "a", 5*time.Second, false)
	m.Acquire(context.Background(), "r3", "b", 5*time.Second, false)

	m.ReleaseAllHeldBy("a")

	locks := m.List()
	assert.Len(t, locks, 1)
	assert.Equal(t, "r3", locks[0].Name)
}
