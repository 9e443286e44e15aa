package charge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineLocksIndependentMachines(t *testing.T) {
	locks := NewMachineLocks()

	r1, err := locks.Acquire(context.Background(), 1, 100*time.Millisecond)
	require.NoError(t, err)
	defer r1()

	// A different machine is not contended.
	r2, err := locks.Acquire(context.Background(), 2, 100*time.Millisecond)
	require.NoError(t, err)
	r2()
}

func TestMachineLocksBoundedWait(t *testing.T) {
	locks := NewMachineLocks()

	release, err := locks.Acquire(context.Background(), 1, 100*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	_, err = locks.Acquire(context.Background(), 1, 30*time.Millisecond)
	require.ErrorIs(t, err, ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	release()

	r, err := locks.Acquire(context.Background(), 1, 30*time.Millisecond)
	require.NoError(t, err)
	r()
}

func TestMachineLocksContextCancel(t *testing.T) {
	locks := NewMachineLocks()

	release, err := locks.Acquire(context.Background(), 1, time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = locks.Acquire(ctx, 1, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMachineLocksReleaseIsIdempotent(t *testing.T) {
	locks := NewMachineLocks()

	release, err := locks.Acquire(context.Background(), 1, 100*time.Millisecond)
	require.NoError(t, err)
	release()
	release() // a second call must not free the slot twice

	r, err := locks.Acquire(context.Background(), 1, 50*time.Millisecond)
	require.NoError(t, err)
	defer r()

	// Had the double release freed two slots, this would succeed while
	// r was still held.
	_, err = locks.Acquire(context.Background(), 1, 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestReleaserReplacesAndCancels(t *testing.T) {
	rel := NewReleaser()
	defer rel.Stop()

	fired := make(chan int, 2)
	rel.Schedule(1, time.Hour, func() { fired <- 1 })
	rel.Schedule(1, 20*time.Millisecond, func() { fired <- 2 })

	select {
	case got := <-fired:
		assert.Equal(t, 2, got, "rescheduling replaces the pending release")
	case <-time.After(time.Second):
		t.Fatal("scheduled release never fired")
	}

	rel.Schedule(2, 20*time.Millisecond, func() { fired <- 3 })
	rel.Cancel(2)
	select {
	case got := <-fired:
		t.Fatalf("cancelled release fired: %d", got)
	case <-time.After(60 * time.Millisecond):
	}
}
