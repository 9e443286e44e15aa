package keypad

import (
	"sync"
	"time"
)

// Status is the per-feed outcome of a code-entry session.
type Status string

const (
	StatusCollecting Status = "collecting"
	StatusIncomplete Status = "incomplete"
	StatusLocked     Status = "locked"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusCleared    Status = "cleared"
)

// Policy holds the code-entry security parameters.
type Policy struct {
	CodeLength        int
	EntryTimeout      time.Duration // max gap between key presses
	MaxFailedAttempts int
	Lockout           time.Duration

	// AutoValidate validates the instant the buffer reaches CodeLength
	// instead of waiting for an explicit confirm key.
	AutoValidate bool
}

// Result reports the session state after one fed symbol.
type Result struct {
	Status           Status
	Code             string // the accepted code
	Buffer           string
	FailedAttempts   int
	RemainingLockout time.Duration
}

// Session collects digits into a code and enforces the timeout and
// lockout policy. The verify predicate decides accept/reject; the
// session itself never sees account data.
type Session struct {
	policy Policy
	verify func(code string) bool
	now    func() time.Time

	mu           sync.Mutex
	buffer       string
	lastKey      time.Time
	failed       int
	lockoutUntil time.Time
}

// NewSession creates a session with the given policy and verifier.
func NewSession(policy Policy, verify func(string) bool) *Session {
	if policy.CodeLength <= 0 {
		policy.CodeLength = 6
	}
	return &Session{policy: policy, verify: verify, now: time.Now}
}

// Feed pushes one symbol through the session.
func (s *Session) Feed(sym Symbol) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Before(s.lockoutUntil) {
		return Result{Status: StatusLocked, RemainingLockout: s.lockoutUntil.Sub(now)}
	}

	// A half-entered code must not linger and be completed by an
	// unrelated later key press. The failure counter is untouched.
	if s.buffer != "" && now.Sub(s.lastKey) > s.policy.EntryTimeout {
		s.buffer = ""
	}

	switch {
	case sym == SymCancel:
		s.buffer = ""
		return Result{Status: StatusCleared, FailedAttempts: s.failed}

	case sym.IsDigit():
		s.lastKey = now
		if len(s.buffer) < s.policy.CodeLength {
			s.buffer += string(sym)
		}
		if s.policy.AutoValidate && len(s.buffer) == s.policy.CodeLength {
			return s.validate(now)
		}
		return Result{Status: StatusCollecting, Buffer: s.buffer, FailedAttempts: s.failed}

	case sym == SymEnter:
		s.lastKey = now
		if len(s.buffer) < s.policy.CodeLength {
			return Result{Status: StatusIncomplete, Buffer: s.buffer, FailedAttempts: s.failed}
		}
		return s.validate(now)
	}

	return Result{Status: StatusCollecting, Buffer: s.buffer, FailedAttempts: s.failed}
}

// validate consumes the buffer and runs the verifier. Caller holds mu.
func (s *Session) validate(now time.Time) Result {
	code := s.buffer
	s.buffer = ""

	if s.verify != nil && s.verify(code) {
		s.failed = 0
		return Result{Status: StatusAccepted, Code: code}
	}

	s.failed++
	if s.failed >= s.policy.MaxFailedAttempts {
		s.failed = 0
		s.lockoutUntil = now.Add(s.policy.Lockout)
		return Result{Status: StatusLocked, RemainingLockout: s.policy.Lockout}
	}
	return Result{Status: StatusRejected, FailedAttempts: s.failed}
}

// Locked reports whether the session is inside a lockout window.
func (s *Session) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.lockoutUntil)
}

// ClearBuffer discards collected digits, leaving the failure counter
// and any lockout intact.
func (s *Session) ClearBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = ""
}
