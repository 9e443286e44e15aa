package keypad

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"laundry-pay-backend/internal/charge"
	"laundry-pay-backend/internal/model"
)

// Charger is the slice of the charge orchestrator the controller needs.
type Charger interface {
	Machine(id int) (model.Machine, bool)
	Charge(ctx context.Context, req charge.Request) (*charge.Receipt, error)
}

// AccountDirectory answers whether a tenant code exists. Balance is
// checked later by the orchestrator.
type AccountDirectory interface {
	Account(ctx context.Context, tenantCode string) (*model.Account, error)
}

// Speaker delivers spoken feedback to the person at the keypad.
type Speaker interface {
	Speak(text string)
}

// State names the controller's position in the entry flow.
type State string

const (
	StateIdle          State = "IDLE"
	StateEnterCode     State = "ENTER_CODE"
	StateSelectMachine State = "SELECT_MACHINE"
	StateConfirm       State = "CONFIRM"
)

// Controller sequences code entry, machine selection and confirmation
// over a stream of keypad symbols. A cancel symbol returns to idle from
// any state; a stale session is reset on the next key press.
type Controller struct {
	charger  Charger
	accounts AccountDirectory
	speaker  Speaker
	session  *Session
	policy   Policy
	now      func() time.Time

	mu        sync.Mutex
	state     State
	code      string
	machine   int
	lastInput time.Time
}

// NewController wires a controller whose code session validates against
// account existence. The policy decides whether the code is checked as
// soon as it is complete or only on enter.
func NewController(charger Charger, accounts AccountDirectory, speaker Speaker, policy Policy) *Controller {
	c := &Controller{
		charger:  charger,
		accounts: accounts,
		speaker:  speaker,
		policy:   policy,
		now:      time.Now,
		state:    StateIdle,
	}
	c.session = NewSession(policy, c.codeExists)
	c.lastInput = c.now()
	return c
}

func (c *Controller) codeExists(code string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.accounts.Account(ctx, code)
	return err == nil
}

// CurrentState returns the flow state.
func (c *Controller) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) speak(text string) {
	if c.speaker != nil {
		c.speaker.Speak(text)
	}
}

func (c *Controller) reset() {
	c.state = StateIdle
	c.code = ""
	c.machine = 0
	c.session.ClearBuffer()
	c.lastInput = c.now()
}

// HandleSymbol advances the flow by one key press. It is safe to call
// from the listener goroutine.
func (c *Controller) HandleSymbol(ctx context.Context, sym Symbol) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.state != StateIdle && now.Sub(c.lastInput) > c.policy.EntryTimeout {
		c.reset()
		c.speak(fmt.Sprintf("Timeout. Please enter your %d digit code.", c.policy.CodeLength))
	}
	c.lastInput = now

	if sym == SymCancel {
		c.reset()
		c.speak("Cancelled.")
		return
	}

	switch c.state {
	case StateIdle:
		if sym.IsDigit() {
			c.state = StateEnterCode
			c.session.Feed(sym)
			c.speak(fmt.Sprintf("Enter your %d digit code.", c.policy.CodeLength))
		}

	case StateEnterCode:
		c.enterCode(sym)

	case StateSelectMachine:
		c.selectMachine(sym)

	case StateConfirm:
		if sym == SymEnter {
			c.invokeCharge(ctx)
		}
	}
}

func (c *Controller) enterCode(sym Symbol) {
	res := c.session.Feed(sym)
	switch res.Status {
	case StatusAccepted:
		c.code = res.Code
		c.state = StateSelectMachine
		c.speak("Code accepted. Please select machine one through six.")
	case StatusRejected:
		c.speak("Invalid code.")
		c.reset()
	case StatusIncomplete:
		c.speak(fmt.Sprintf("Code must be %d digits.", c.policy.CodeLength))
	case StatusLocked:
		secs := int(res.RemainingLockout.Round(time.Second).Seconds())
		c.speak(fmt.Sprintf("Too many attempts. Keypad locked for %d seconds.", secs))
		c.reset()
	}
}

func (c *Controller) selectMachine(sym Symbol) {
	n, ok := sym.Digit()
	if !ok {
		return
	}
	m, ok := c.charger.Machine(n)
	if !ok {
		return
	}
	c.machine = m.ID
	c.speak(fmt.Sprintf("Machine %d selected for %d minutes. Press enter to confirm.", m.ID, m.CycleMinutes))
	c.state = StateConfirm
}

func (c *Controller) invokeCharge(ctx context.Context) {
	defer c.reset()

	_, err := c.charger.Charge(ctx, charge.Request{TenantCode: c.code, Machine: c.machine})
	if err == nil {
		c.speak("Payment accepted. Starting the cycle.")
		return
	}
	log.Printf("keypad: charge machine %d failed: %v", c.machine, err)
	c.speak(failurePhrase(err))
}

func failurePhrase(err error) string {
	code, ok := charge.CodeOf(err)
	if !ok {
		return "Operation failed."
	}
	switch code {
	case charge.CodeMachineBusy:
		return "Machine is busy."
	case charge.CodeInsufficientFunds:
		return "Insufficient balance."
	case charge.CodeMachineDisabled:
		return "Machine disabled."
	case charge.CodeTenantNotFound:
		return "User not found."
	case charge.CodePriceNotDefined:
		return "No price is defined for this machine."
	default:
		return "Operation failed."
	}
}
