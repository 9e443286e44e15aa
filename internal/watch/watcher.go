// Package watch polls machine availability and reports cycle completions.
package watch

import (
	"context"
	"log"
	"time"

	"laundry-pay-backend/internal/arbiter"
	"laundry-pay-backend/internal/model"
)

// StatusReader supplies the fleet and per-machine availability verdicts.
type StatusReader interface {
	Fleet() []model.Machine
	Status(ctx context.Context, machineID int) (arbiter.Status, error)
}

// Notifier receives cycle completion events.
type Notifier interface {
	CycleFinished(machine int)
}

// Service watches for busy-to-available transitions. A machine that was
// busy on the previous poll and is available now has finished its cycle.
type Service struct {
	reader   StatusReader
	notifier Notifier
	interval time.Duration

	wasBusy map[int]bool
}

// NewService creates a watcher polling at the given interval.
func NewService(reader StatusReader, notifier Notifier, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Service{
		reader:   reader,
		notifier: notifier,
		interval: interval,
		wasBusy:  make(map[int]bool),
	}
}

// Run starts the polling loop and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	log.Println("watch: starting cycle watcher")

	s.Poll(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("watch: shutting down")
			return
		case <-timer.C:
			s.Poll(ctx)
			timer.Reset(s.interval)
		}
	}
}

// Poll samples every machine once and dispatches completion events.
func (s *Service) Poll(ctx context.Context) {
	for _, m := range s.reader.Fleet() {
		st, err := s.reader.Status(ctx, m.ID)
		if err != nil {
			log.Printf("watch: status for machine %d: %v", m.ID, err)
			continue
		}

		busy := st.State == arbiter.StateBusy
		if s.wasBusy[m.ID] && st.State == arbiter.StateAvailable {
			log.Printf("watch: machine %d finished its cycle", m.ID)
			s.notifier.CycleFinished(m.ID)
		}

		// Unknown and disabled verdicts keep the previous busy flag so a
		// transient sensor dropout does not fire a completion event.
		if busy || st.State == arbiter.StateAvailable {
			s.wasBusy[m.ID] = busy
		}
	}
}
