package validator

import "fmt"

// ValidationError is the top-level error the validator returns,
// wrapping the SanityError or SimulationError produced by whichever
// phase failed (spec.md §7). Callers that care about the specific
// reason should use errors.As/errors.Unwrap rather than string
// matching.
type ValidationError struct {
	Kind string
	Err  error
}

const (
	KindSanity     = "sanity"
	KindSimulation = "simulation"
)

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %v", e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func sanityErr(err error) *ValidationError {
	return &ValidationError{Kind: KindSanity, Err: err}
}

func simulationErr(err error) *ValidationError {
	return &ValidationError{Kind: KindSimulation, Err: err}
}
