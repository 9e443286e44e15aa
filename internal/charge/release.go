package charge

import (
	"sync"
	"time"
)

// Releaser schedules the deferred auto-release that turns a hold-mode
// output off once the purchased cycle elapses. Tasks are keyed by
// machine id; scheduling again replaces the pending task so a manual
// deactivate never races a stale double-release.
type Releaser struct {
	mu     sync.Mutex
	timers map[int]*time.Timer
}

// NewReleaser creates an empty scheduler.
func NewReleaser() *Releaser {
	return &Releaser{timers: make(map[int]*time.Timer)}
}

// Schedule runs fn after d, replacing any pending task for the machine.
func (r *Releaser) Schedule(machineID int, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[machineID]; ok {
		t.Stop()
	}
	r.timers[machineID] = time.AfterFunc(d, func() {
		r.mu.Lock()
		delete(r.timers, machineID)
		r.mu.Unlock()
		fn()
	})
}

// Cancel drops a pending task for the machine, if any.
func (r *Releaser) Cancel(machineID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[machineID]; ok {
		t.Stop()
		delete(r.timers, machineID)
	}
}

// Stop cancels every pending task, used at shutdown.
func (r *Releaser) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}
