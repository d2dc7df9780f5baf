// Package check implements the composable sanity, simulation, and
// simulation-trace checks that make up the validation pipeline.
// Composition is a fold over a slice of function values, short-
// circuiting on the first error — the Go rendering of the source
// language's fixed-size check-tuple trait composition (spec.md §9
// Design Notes).
package check

import "fmt"

// SanityError is the error kind raised by sanity-phase checks.
type SanityError struct {
	Reason string
	Entity string // set for SenderVerification / Paymaster / EntityBanned / SenderOverLimit
}

func (e *SanityError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("sanity: %s (entity=%s)", e.Reason, e.Entity)
	}
	return fmt.Sprintf("sanity: %s", e.Reason)
}

const (
	SanityReasonSenderVerification = "sender_verification"
	SanityReasonVerificationGas    = "verification_gas"
	SanityReasonCallGas            = "call_gas"
	SanityReasonMaxFee             = "max_fee"
	SanityReasonPaymaster          = "paymaster"
	SanityReasonEntityBanned       = "entity_banned"
	SanityReasonSenderOverLimit    = "sender_over_limit"
	SanityReasonMiddlewareError    = "middleware_error"
)

// SimulationError is the error kind raised by simulation-phase and
// simulation-trace-phase checks.
type SimulationError struct {
	Reason  string
	Entity  string
	Op      string
	Slot    string
	Frame   string
	Message string
}

func (e *SimulationError) Error() string {
	switch e.Reason {
	case SimReasonValidation:
		return fmt.Sprintf("simulation: validation failed: %s", e.Message)
	case SimReasonOpcode:
		return fmt.Sprintf("simulation: forbidden opcode %s used by %s", e.Op, e.Entity)
	case SimReasonStorageAccess:
		return fmt.Sprintf("simulation: %s touched external storage slot %s", e.Entity, e.Slot)
	case SimReasonCallStack:
		return fmt.Sprintf("simulation: disallowed call in frame %s", e.Frame)
	case SimReasonExternalContract:
		return fmt.Sprintf("simulation: %s referenced disallowed external contract", e.Entity)
	case SimReasonUnknown:
		return fmt.Sprintf("simulation: unknown failure: %s", e.Message)
	default:
		return fmt.Sprintf("simulation: %s", e.Reason)
	}
}

const (
	SimReasonValidation      = "validation"
	SimReasonSignature       = "signature"
	SimReasonTimestamp       = "timestamp"
	SimReasonOpcode          = "opcode"
	SimReasonStorageAccess   = "storage_access"
	SimReasonCallStack       = "call_stack"
	SimReasonCodeHashChanged = "code_hash_changed"
	SimReasonExternalContract = "external_contract"
	SimReasonGas             = "gas"
	SimReasonUnknown         = "unknown"
)
