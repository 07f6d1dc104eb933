package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrExecutionNotFound is returned when an execution cannot be located.
var ErrExecutionNotFound = errors.New("saga execution not found")

// ListFilter controls execution list query behavior.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// ExecutionStore persists execution projections. Durable storage is a
// pluggable collaborator: the orchestrator only appends snapshots, it never
// reads them back.
type ExecutionStore interface {
	Save(ctx context.Context, exec *Execution) error
	Get(ctx context.Context, sagaID string) (*Execution, error)
	List(ctx context.Context, filter ListFilter) ([]*Execution, int, error)
	Delete(ctx context.Context, sagaID string) error
}

// MemoryExecutionStore is an in-memory ExecutionStore implementation.
type MemoryExecutionStore struct {
	mu         sync.RWMutex
	executions map[string]*Execution
}

// NewMemoryExecutionStore creates an in-memory execution store.
func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{
		executions: make(map[string]*Execution),
	}
}

// Save saves an execution snapshot.
func (s *MemoryExecutionStore) Save(_ context.Context, exec *Execution) error {
	if exec == nil {
		return fmt.Errorf("saga execution cannot be nil")
	}
	s.mu.Lock()
	s.executions[exec.SagaID] = cloneExecution(exec)
	s.mu.Unlock()
	return nil
}

// Get gets one execution by saga id.
func (s *MemoryExecutionStore) Get(_ context.Context, sagaID string) (*Execution, error) {
	s.mu.RLock()
	exec, ok := s.executions[sagaID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrExecutionNotFound
	}
	return cloneExecution(exec), nil
}

// List lists executions with optional status filter and pagination.
func (s *MemoryExecutionStore) List(_ context.Context, filter ListFilter) ([]*Execution, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Execution, 0, len(s.executions))
	for _, exec := range s.executions {
		if filter.Status != "" && exec.Status.String() != filter.Status {
			continue
		}
		all = append(all, cloneExecution(exec))
	}
	total := len(all)

	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Limit < 0 {
		filter.Limit = 0
	}
	if filter.Offset > total {
		filter.Offset = total
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}

	return all[filter.Offset:end], total, nil
}

// Delete removes one execution.
func (s *MemoryExecutionStore) Delete(_ context.Context, sagaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[sagaID]; !ok {
		return ErrExecutionNotFound
	}
	delete(s.executions, sagaID)
	return nil
}
