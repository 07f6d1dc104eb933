// Package saga provides a sequential saga orchestrator: forward steps with
// paired compensating actions, used to approximate an all-or-nothing
// transaction across systems that do not share a single commit.
package saga

import (
	"context"
	"time"
)

// ExecuteFunc runs the forward action of a step. It receives the context
// value produced by the previous step and returns the context value handed to
// the next one. Implementations must not mutate the input in place.
type ExecuteFunc[C any] func(ctx context.Context, sc C) (C, error)

// CompensateFunc undoes a previously completed step. It is invoked with the
// saga context as it was at the moment of failure.
type CompensateFunc[C any] func(ctx context.Context, sc C) error

// Step defines one executable unit in a saga.
type Step[C any] struct {
	Name       string
	Execute    ExecuteFunc[C]
	Compensate CompensateFunc[C]

	// Critical controls failure handling: a critical step aborts the saga
	// and triggers reverse compensation, a non-critical step is logged and
	// skipped.
	Critical bool

	// Retries is the number of additional attempts after the first failure.
	// The delay before attempt i is RetryDelay * i (linear backoff).
	Retries    int
	RetryDelay time.Duration
}

// StepOption configures a step definition.
type StepOption[C any] func(step *Step[C]) error

// NonCritical marks the step as best-effort: its failure never fails the saga.
func NonCritical[C any]() StepOption[C] {
	return func(step *Step[C]) error {
		step.Critical = false
		return nil
	}
}

// WithRetries configures the step-local retry policy.
func WithRetries[C any](retries int, delay time.Duration) StepOption[C] {
	return func(step *Step[C]) error {
		step.Retries = retries
		step.RetryDelay = delay
		return nil
	}
}
