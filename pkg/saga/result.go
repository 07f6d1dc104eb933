package saga

import "time"

// StepError records a compensation failure for one step.
type StepError struct {
	Step string
	Err  error
}

// Result is the terminal outcome of one saga execution. Execute always
// returns a Result; callers branch on Success instead of an error return.
type Result[C any] struct {
	Success bool

	// Context is the final context on success, or the partial context as it
	// was at the moment of failure.
	Context C

	// CompletedSteps lists steps that finished Execute successfully, in
	// execution order.
	CompletedSteps []string

	// FailedStep and Err are set iff Success is false. A framework-level
	// failure outside any step reports FailedStep "unknown".
	FailedStep string
	Err        error

	// CompensatedSteps lists compensations attempted on failure, in reverse
	// completion order. CompensationErrors records any that failed; a
	// compensation error never aborts compensation of the remaining steps.
	CompensatedSteps   []string
	CompensationErrors []StepError

	SagaID   string
	Duration time.Duration
}

// FrameworkFailureStep is reported as FailedStep when the orchestrator fails
// outside any step's own error handling. No compensation is attempted in that
// case because the completed-steps list cannot be trusted.
const FrameworkFailureStep = "unknown"
