package arbiter

import (
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// SoftTimers is the process-wide "consider this machine busy until T"
// map. Entries carry their own TTL, so expiry needs no sweeper; the
// store is volatile on purpose: after a restart only hardware and
// sensor feedback judge a machine.
type SoftTimers struct {
	c *cache.Cache
}

// NewSoftTimers creates an empty timer map.
func NewSoftTimers() *SoftTimers {
	return &SoftTimers{c: cache.New(cache.NoExpiration, time.Minute)}
}

func timerKey(machineID int) string {
	return strconv.Itoa(machineID)
}

// Arm marks a machine busy for the given duration.
func (t *SoftTimers) Arm(machineID int, d time.Duration) {
	if d <= 0 {
		return
	}
	t.c.Set(timerKey(machineID), time.Now().Add(d), d)
}

// Busy reports whether an unexpired timer exists for the machine.
func (t *SoftTimers) Busy(machineID int) bool {
	_, found := t.c.Get(timerKey(machineID))
	return found
}

// Remaining returns the time left on the machine's timer, zero when none.
func (t *SoftTimers) Remaining(machineID int) time.Duration {
	v, found := t.c.Get(timerKey(machineID))
	if !found {
		return 0
	}
	expiry, ok := v.(time.Time)
	if !ok {
		return 0
	}
	rem := time.Until(expiry)
	if rem < 0 {
		return 0
	}
	return rem
}

// Clear drops the machine's timer, e.g. when hardware reports idle.
func (t *SoftTimers) Clear(machineID int) {
	t.c.Delete(timerKey(machineID))
}
