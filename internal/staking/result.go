package staking

import "sync"

// BlockValidationResult is the outcome of a validation step: valid, or
// invalid with exactly one reason. The zero value is valid.
type BlockValidationResult struct {
	invalid bool
	err     BlockValidationError
}

// Valid returns a successful result.
func Valid() BlockValidationResult {
	return BlockValidationResult{}
}

// Invalid returns a result rejected for e.
func Invalid(e BlockValidationError) BlockValidationResult {
	return BlockValidationResult{invalid: true, err: e}
}

// IsValid reports whether the result carries no rejection.
func (r BlockValidationResult) IsValid() bool {
	return !r.invalid
}

// Error returns the rejection reason and true, or false if the result is valid.
func (r BlockValidationResult) Error() (BlockValidationError, bool) {
	return r.err, r.invalid
}

// Err returns the rejection reason as an error, or nil if valid.
func (r BlockValidationResult) Err() error {
	if !r.invalid {
		return nil
	}
	return r.err
}

// String returns "valid" or the reason's name.
func (r BlockValidationResult) String() string {
	if !r.invalid {
		return "valid"
	}
	return r.err.String()
}

// RejectCode classifies a rejection for the peer reject message.
type RejectCode uint8

// Reject codes.
const (
	RejectMalformed RejectCode = 0x01
	RejectInvalid   RejectCode = 0x10
	RejectObsolete  RejectCode = 0x11
	RejectDuplicate RejectCode = 0x12
)

// ValidationState is the block acceptance pipeline's record of a
// validation run.
type ValidationState interface {
	Invalid(code RejectCode, reason string)
	IsValid() bool
}

// CheckResult reports an invalid result to state and returns whether the
// result is valid. A valid result leaves state untouched.
func CheckResult(result BlockValidationResult, state ValidationState) bool {
	e, invalid := result.Error()
	if !invalid {
		return true
	}
	state.Invalid(RejectInvalid, GetRejectionMessageFor(e))
	return false
}

// State is a ValidationState that keeps the first rejection reported to
// it. It is safe for concurrent use.
type State struct {
	mu      sync.Mutex
	invalid bool
	code    RejectCode
	reason  string
}

// Invalid records a rejection unless one was already recorded.
func (s *State) Invalid(code RejectCode, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalid {
		return
	}
	s.invalid = true
	s.code = code
	s.reason = reason
}

// IsValid reports whether no rejection has been recorded.
func (s *State) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.invalid
}

// Rejection returns the recorded reject code and reason.
func (s *State) Rejection() (RejectCode, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.reason
}
