package saga

import (
	"fmt"
	"time"
)

// Status defines the lifecycle of a saga execution.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusCompensating
	StatusCompensated
	StatusCompensationFailed
)

var validTransitions = map[Status]map[Status]struct{}{
	StatusPending: {
		StatusRunning: {},
	},
	StatusRunning: {
		StatusCompleted:    {},
		StatusFailed:       {},
		StatusCompensating: {},
	},
	StatusFailed: {
		StatusCompensating: {},
	},
	StatusCompensating: {
		StatusCompensated:        {},
		StatusCompensationFailed: {},
	},
}

// String returns the string form of Status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCompensating:
		return "compensating"
	case StatusCompensated:
		return "compensated"
	case StatusCompensationFailed:
		return "compensation_failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the status is terminal.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCompensated, StatusCompensationFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks whether a status transition is valid.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	validNext, ok := validTransitions[s]
	if !ok {
		return false
	}
	_, ok = validNext[next]
	return ok
}

// ValidateTransition validates transition semantics.
func ValidateTransition(current, next Status) error {
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("invalid saga status transition: %s -> %s", current, next)
	}
	return nil
}

// Execution is the observable projection of one in-flight saga run. It is
// emitted to the OnStateChange callback and persisted to the wired
// ExecutionStore after every transition.
type Execution struct {
	SagaID         string
	Name           string
	Status         Status
	CurrentStep    string
	CompletedSteps []string
	Compensated    []string
	FailedStep     string
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// NewExecution creates a pending execution projection.
func NewExecution(sagaID, name string) *Execution {
	now := time.Now().UTC()
	return &Execution{
		SagaID:         sagaID,
		Name:           name,
		Status:         StatusPending,
		CompletedSteps: make([]string, 0),
		Compensated:    make([]string, 0),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TransitionTo applies a status transition.
func (e *Execution) TransitionTo(next Status) error {
	if e == nil {
		return fmt.Errorf("saga execution cannot be nil")
	}
	if err := ValidateTransition(e.Status, next); err != nil {
		return err
	}

	now := time.Now().UTC()
	if e.Status == StatusPending && next == StatusRunning {
		started := now
		e.StartedAt = &started
	}
	if next.IsTerminal() {
		done := now
		e.CompletedAt = &done
	}
	e.Status = next
	e.UpdatedAt = now
	return nil
}

// MarkStepCompleted records a completed step.
func (e *Execution) MarkStepCompleted(name string) {
	if e == nil {
		return
	}
	e.CompletedSteps = append(e.CompletedSteps, name)
	e.UpdatedAt = time.Now().UTC()
}

// MarkStepCompensated records a compensated step.
func (e *Execution) MarkStepCompensated(name string) {
	if e == nil {
		return
	}
	e.Compensated = append(e.Compensated, name)
	e.UpdatedAt = time.Now().UTC()
}

// SetFailure records failed step and error details.
func (e *Execution) SetFailure(step string, err error) {
	if e == nil {
		return
	}
	e.FailedStep = step
	if err != nil {
		e.Error = err.Error()
	}
	e.UpdatedAt = time.Now().UTC()
}

func cloneExecution(exec *Execution) *Execution {
	if exec == nil {
		return nil
	}

	completed := make([]string, len(exec.CompletedSteps))
	copy(completed, exec.CompletedSteps)
	compensated := make([]string, len(exec.Compensated))
	copy(compensated, exec.Compensated)

	clone := &Execution{
		SagaID:         exec.SagaID,
		Name:           exec.Name,
		Status:         exec.Status,
		CurrentStep:    exec.CurrentStep,
		CompletedSteps: completed,
		Compensated:    compensated,
		FailedStep:     exec.FailedStep,
		Error:          exec.Error,
		CreatedAt:      exec.CreatedAt,
		UpdatedAt:      exec.UpdatedAt,
	}
	if exec.StartedAt != nil {
		started := *exec.StartedAt
		clone.StartedAt = &started
	}
	if exec.CompletedAt != nil {
		finished := *exec.CompletedAt
		clone.CompletedAt = &finished
	}
	return clone
}
