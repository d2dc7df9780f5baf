package mempool

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Error is the mempool's error taxonomy (spec.md §7 MempoolError):
// ReplacementUnderpriced, NonceConflict, NotFound, SenderOverLimit.
type Error struct {
	Reason string
	Needed *uint256.Int // set for ReplacementUnderpriced
}

func (e *Error) Error() string {
	if e.Needed != nil {
		return fmt.Sprintf("%s: needed %s", e.Reason, e.Needed.String())
	}
	return e.Reason
}

const (
	ReasonReplacementUnderpriced = "replacement_underpriced"
	ReasonNonceConflict          = "nonce_conflict"
	ReasonNotFound               = "not_found"
	ReasonSenderOverLimit        = "sender_over_limit"
)

func errReplacementUnderpriced(needed *uint256.Int) *Error {
	return &Error{Reason: ReasonReplacementUnderpriced, Needed: needed}
}

func errNonceConflict() *Error { return &Error{Reason: ReasonNonceConflict} }
func errNotFound() *Error      { return &Error{Reason: ReasonNotFound} }
func errSenderOverLimit() *Error {
	return &Error{Reason: ReasonSenderOverLimit}
}
