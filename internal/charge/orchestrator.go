// Package charge implements the transactional charge flow: balance
// validation, machine actuation with confirmation, and ledger mutation
// under explicit locking. No charge is recorded without a confirmed (or
// simulated) activation, and no two charges race on the same machine or
// account.
package charge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"laundry-pay-backend/internal/actuator"
	"laundry-pay-backend/internal/arbiter"
	"laundry-pay-backend/internal/ledger"
	"laundry-pay-backend/internal/model"
)

// Notifier is the spoken/visual feedback side channel. Implementations
// must never block the charge flow on delivery; failures there do not
// affect outcomes.
type Notifier interface {
	Speak(text string)
	CycleStarted(machineID, minutes int)
}

type noopNotifier struct{}

func (noopNotifier) Speak(string)          {}
func (noopNotifier) CycleStarted(int, int) {}

// Settings are the orchestration knobs resolved from configuration.
type Settings struct {
	Mode           actuator.Mode
	Pulse          time.Duration
	ConfirmTimeout time.Duration
	ConfirmPoll    time.Duration
	LockTimeout    time.Duration
	Simulate       bool
}

// Request is one paid-activation attempt.
type Request struct {
	TenantCode   string
	Machine      int
	Price        *decimal.Decimal // overrides the machine default
	CycleMinutes *int             // overrides the machine default
}

// Receipt describes a completed charge.
type Receipt struct {
	TenantCode    string          `json:"tenant_code"`
	Machine       int             `json:"machine"`
	Charged       decimal.Decimal `json:"charged"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	CycleMinutes  int             `json:"cycle_minutes"`
	Simulated     bool            `json:"simulated,omitempty"`
}

// Orchestrator executes charges against a fixed fleet.
type Orchestrator struct {
	fleet    map[int]model.Machine
	order    []int
	store    ledger.Store
	arb      *arbiter.Arbiter
	driver   actuator.Driver
	locks    *MachineLocks
	releaser *Releaser
	notifier Notifier
	settings Settings
}

// New wires an orchestrator. notifier may be nil.
func New(fleet []model.Machine, store ledger.Store, arb *arbiter.Arbiter, driver actuator.Driver, notifier Notifier, settings Settings) *Orchestrator {
	byID := make(map[int]model.Machine, len(fleet))
	order := make([]int, 0, len(fleet))
	for _, m := range fleet {
		byID[m.ID] = m
		order = append(order, m.ID)
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Orchestrator{
		fleet:    byID,
		order:    order,
		store:    store,
		arb:      arb,
		driver:   driver,
		locks:    NewMachineLocks(),
		releaser: NewReleaser(),
		notifier: notifier,
		settings: settings,
	}
}

// Machine returns a fleet member by id.
func (o *Orchestrator) Machine(id int) (model.Machine, bool) {
	m, ok := o.fleet[id]
	return m, ok
}

// Fleet returns the machines in configuration order.
func (o *Orchestrator) Fleet() []model.Machine {
	out := make([]model.Machine, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.fleet[id])
	}
	return out
}

// Status reports a machine's availability verdict.
func (o *Orchestrator) Status(ctx context.Context, machineID int) (arbiter.Status, error) {
	m, ok := o.fleet[machineID]
	if !ok {
		return arbiter.Status{}, failure(CodeInvalidInput, fmt.Errorf("unknown machine %d", machineID))
	}
	return o.arb.Status(ctx, m), nil
}

// Releaser exposes the auto-release scheduler for shutdown.
func (o *Orchestrator) Releaser() *Releaser { return o.releaser }

// Charge runs the full flow once. Every exit before commit leaves the
// account balance untouched; denials where money was at stake are
// audited as zero-amount failed transactions by the ledger layer.
func (o *Orchestrator) Charge(ctx context.Context, req Request) (*Receipt, error) {
	return o.charge(ctx, req, o.settings.Simulate)
}

// Simulate runs the same flow with actuation skipped, regardless of the
// deployment-wide simulation setting. The ledger is still debited.
func (o *Orchestrator) Simulate(ctx context.Context, req Request) (*Receipt, error) {
	return o.charge(ctx, req, true)
}

func (o *Orchestrator) charge(ctx context.Context, req Request, simulate bool) (*Receipt, error) {
	if req.TenantCode == "" || req.Machine == 0 {
		return nil, failure(CodeInvalidInput, nil)
	}
	m, ok := o.fleet[req.Machine]
	if !ok {
		return nil, failure(CodeInvalidInput, fmt.Errorf("unknown machine %d", req.Machine))
	}

	if !o.arb.Enabled(m) {
		o.notifier.Speak(fmt.Sprintf("Machine %d is currently disabled.", m.ID))
		return nil, failure(CodeMachineDisabled, nil)
	}
	if !o.arb.Available(ctx, m) {
		o.speakBusy(m.ID)
		return nil, failure(CodeMachineBusy, nil)
	}

	price := m.Price
	if req.Price != nil {
		price = *req.Price
	}
	minutes := m.CycleMinutes
	if req.CycleMinutes != nil {
		minutes = *req.CycleMinutes
	}
	if !price.IsPositive() {
		return nil, failure(CodePriceNotDefined, nil)
	}

	if _, err := o.store.Precheck(ctx, req.TenantCode, price, m.ID, minutes); err != nil {
		return nil, o.ledgerFailure(err)
	}

	release, err := o.locks.Acquire(ctx, m.ID, o.settings.LockTimeout)
	if err != nil {
		return nil, failure(CodeLockTimeout, err)
	}
	defer release()

	// Close the race window between the optimistic pre-check and the
	// lock: a request that lost the lock race must still be rejected.
	if !o.arb.Available(ctx, m) {
		o.speakBusy(m.ID)
		return nil, failure(CodeMachineBusy, nil)
	}

	if !simulate {
		if err := o.activateAndConfirm(ctx, m); err != nil {
			if rerr := o.store.RecordFailure(ctx, req.TenantCode, m.ID, minutes); rerr != nil {
				log.Printf("charge: audit record failed for %s: %v", req.TenantCode, rerr)
			}
			return nil, failure(CodeActivationFailed, err)
		}
	} else {
		log.Printf("charge: simulate mode, skipping activation of machine %d", m.ID)
	}

	before, after, err := o.store.CommitCharge(ctx, req.TenantCode, m.ID, price, minutes)
	if err != nil {
		// The account changed underneath us during activation. Undo the
		// physical side best-effort; the balance was never touched.
		if !simulate {
			o.rollbackOutput(m)
		}
		return nil, o.ledgerFailure(err)
	}

	if minutes > 0 {
		duration := time.Duration(minutes) * time.Minute
		o.arb.Timers().Arm(m.ID, duration)
		if o.settings.Mode == actuator.ModeHold && !simulate {
			mapping := m.Mapping
			o.releaser.Schedule(m.ID, duration, func() {
				if err := o.driver.Deactivate(context.Background(), mapping); err != nil {
					log.Printf("charge: auto-release machine %d: %v", m.ID, err)
				}
			})
		}
	}

	o.notifier.Speak(fmt.Sprintf("Machine %d started for %d minutes.", m.ID, minutes))
	o.notifier.CycleStarted(m.ID, minutes)

	return &Receipt{
		TenantCode:    req.TenantCode,
		Machine:       m.ID,
		Charged:       price,
		BalanceBefore: before,
		BalanceAfter:  after,
		CycleMinutes:  minutes,
		Simulated:     simulate,
	}, nil
}

// activateAndConfirm drives the output and waits for the busy signal.
// In pulse mode the activate call itself blocks for the pulse; in hold
// mode an unconfirmed activation is rolled back by re-issuing the
// deactivate.
func (o *Orchestrator) activateAndConfirm(ctx context.Context, m model.Machine) error {
	if err := o.driver.Activate(ctx, m.Mapping, o.settings.Mode, o.settings.Pulse); err != nil {
		return fmt.Errorf("activate machine %d: %w", m.ID, err)
	}

	deadline := time.Now().Add(o.settings.ConfirmTimeout)
	for {
		if o.arb.ConfirmActive(ctx, m) {
			return nil
		}
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			o.rollbackOutput(m)
			return ctx.Err()
		case <-time.After(o.settings.ConfirmPoll):
		}
	}

	log.Printf("charge: activation of machine %d not confirmed within %s", m.ID, o.settings.ConfirmTimeout)
	o.rollbackOutput(m)
	return fmt.Errorf("machine %d gave no busy confirmation", m.ID)
}

// rollbackOutput turns the output back off after a failed hold-mode
// activation. Pulse mode already released the relay.
func (o *Orchestrator) rollbackOutput(m model.Machine) {
	if o.settings.Mode != actuator.ModeHold {
		return
	}
	if err := o.driver.Deactivate(context.Background(), m.Mapping); err != nil {
		log.Printf("charge: rollback deactivate machine %d: %v", m.ID, err)
	}
}

func (o *Orchestrator) ledgerFailure(err error) error {
	switch {
	case errors.Is(err, ledger.ErrTenantNotFound):
		return failure(CodeTenantNotFound, err)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		o.notifier.Speak("Insufficient balance.")
		return failure(CodeInsufficientFunds, err)
	default:
		return failure(CodeActivationFailed, err)
	}
}

func (o *Orchestrator) speakBusy(machineID int) {
	o.notifier.Speak(fmt.Sprintf("Machine %d is busy. Please choose another machine.", machineID))
}
