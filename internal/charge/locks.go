package charge

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a machine lock cannot be acquired
// within its bounded wait. The request fails rather than queue forever
// behind a presumed-stuck machine.
var ErrLockTimeout = errors.New("machine lock timeout")

// MachineLocks provides one exclusive lock per machine with
// bounded-wait acquisition.
type MachineLocks struct {
	mu    sync.Mutex
	slots map[int]chan struct{}
}

// NewMachineLocks creates an empty lock set.
func NewMachineLocks() *MachineLocks {
	return &MachineLocks{slots: make(map[int]chan struct{})}
}

func (l *MachineLocks) slot(machineID int) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[machineID]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[machineID] = s
	}
	return s
}

// Acquire takes the machine's lock, waiting at most timeout. It returns
// the release function, or ErrLockTimeout / the context error.
func (l *MachineLocks) Acquire(ctx context.Context, machineID int, timeout time.Duration) (func(), error) {
	s := l.slot(machineID)

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case s <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-s })
		}, nil
	case <-t.C:
		return nil, ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
