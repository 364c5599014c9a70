package x402

import "fmt"

// Step identifies one stage of the gasless settlement protocol.
type Step string

const (
	StepRequirements Step = "requirements"
	StepHeader       Step = "header"
	StepVerify       Step = "verify"
	StepSettle       Step = "settle"
)

// State tracks a settlement session through the protocol.
type State int

const (
	StateIdle State = iota
	StateRequirementsBuilt
	StateHeaderSigned
	StateVerified
	StateSettled
	StateFailed
)

// String renders the state for logs and status output.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequirementsBuilt:
		return "requirements_built"
	case StateHeaderSigned:
		return "header_signed"
	case StateVerified:
		return "verified"
	case StateSettled:
		return "settled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StepError reports which protocol step failed and why. Header failures are
// fatal for the caller (no signer means no settlement is possible); verify and
// settle failures abandon only the payout at hand.
type StepError struct {
	Step Step
	Err  error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("x402 %s: %v", e.Step, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *StepError) Unwrap() error { return e.Err }

// Session captures the transient state of one settlement attempt. Sessions are
// scoped to a single payout and discarded afterwards; no retry state survives.
type Session struct {
	State        State
	FailedStep   Step
	Requirements PaymentRequirements
	Header       string
	TxHash       string
}

func (s *Session) advance(state State) {
	s.State = state
}

func (s *Session) fail(step Step, err error) *StepError {
	s.State = StateFailed
	s.FailedStep = step
	return &StepError{Step: step, Err: err}
}
