package models

import (
	"time"

	"github.com/gateline/gateline/pkg/saga"
)

// SagaStatusResponse returns current runtime information for one saga run.
type SagaStatusResponse struct {
	SagaID         string     `json:"saga_id"`
	Name           string     `json:"name"`
	State          string     `json:"state"`
	CurrentStep    string     `json:"current_step,omitempty"`
	CompletedSteps []string   `json:"completed_steps"`
	Compensated    []string   `json:"compensated_steps"`
	FailedStep     string     `json:"failed_step,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// NewSagaStatusResponse projects an execution snapshot into the API shape.
func NewSagaStatusResponse(exec *saga.Execution) SagaStatusResponse {
	return SagaStatusResponse{
		SagaID:         exec.SagaID,
		Name:           exec.Name,
		State:          exec.Status.String(),
		CurrentStep:    exec.CurrentStep,
		CompletedSteps: exec.CompletedSteps,
		Compensated:    exec.Compensated,
		FailedStep:     exec.FailedStep,
		FailureReason:  exec.Error,
		CreatedAt:      exec.CreatedAt,
		UpdatedAt:      exec.UpdatedAt,
		StartedAt:      exec.StartedAt,
		CompletedAt:    exec.CompletedAt,
	}
}

// SagaSummary is one row in a list response.
type SagaSummary struct {
	SagaID      string     `json:"saga_id"`
	Name        string     `json:"name"`
	State       string     `json:"state"`
	FailedStep  string     `json:"failed_step,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewSagaSummary projects an execution snapshot into a list row.
func NewSagaSummary(exec *saga.Execution) SagaSummary {
	return SagaSummary{
		SagaID:      exec.SagaID,
		Name:        exec.Name,
		State:       exec.Status.String(),
		FailedStep:  exec.FailedStep,
		CreatedAt:   exec.CreatedAt,
		CompletedAt: exec.CompletedAt,
	}
}

// SagaListResponse is a paginated list of saga summaries.
type SagaListResponse struct {
	Items  []SagaSummary `json:"items"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}
