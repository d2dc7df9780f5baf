package coordinator

import "fmt"

// Error is the admission-coordinator-level error kind: unsupported
// entrypoints and debug-surface gating, distinct from the
// sanity/simulation/mempool error kinds the layers below it raise.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("coordinator: %s", e.Reason) }

const (
	ReasonInvalidEntryPoint = "invalid_entry_point"
	ReasonDebugDisabled     = "debug_disabled"
)

func errInvalidEntryPoint() *Error { return &Error{Reason: ReasonInvalidEntryPoint} }
func errDebugDisabled() *Error     { return &Error{Reason: ReasonDebugDisabled} }
