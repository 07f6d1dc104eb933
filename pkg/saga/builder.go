package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/gateline/gateline/pkg/logger"
)

// Builder incrementally constructs an Orchestrator from an ordered step list.
type Builder[C any] struct {
	name    string
	steps   []*Step[C]
	seen    map[string]struct{}
	log     logger.Logger
	metrics MetricsRecorder
	store   ExecutionStore
	errs    []error
}

// New creates a saga builder.
func New[C any](name string) *Builder[C] {
	return &Builder[C]{
		name:  name,
		steps: make([]*Step[C], 0),
		seen:  make(map[string]struct{}),
	}
}

// Step appends a critical step. A nil compensate function gets a no-op
// compensation, which is the safe default for read-only or idempotent steps.
func (b *Builder[C]) Step(name string, execute ExecuteFunc[C], compensate CompensateFunc[C], opts ...StepOption[C]) *Builder[C] {
	step := &Step[C]{
		Name:       name,
		Execute:    execute,
		Compensate: compensate,
		Critical:   true,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(step); err != nil {
			b.errs = append(b.errs, fmt.Errorf("step %q: %w", name, err))
		}
	}
	if step.Compensate == nil {
		step.Compensate = func(context.Context, C) error { return nil }
	}

	if _, exists := b.seen[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("duplicate step name: %s", name))
		return b
	}
	b.seen[name] = struct{}{}
	b.steps = append(b.steps, step)
	return b
}

// OptionalStep appends a non-critical step: its failure is logged and the
// saga proceeds as if the step had been skipped.
func (b *Builder[C]) OptionalStep(name string, execute ExecuteFunc[C], compensate CompensateFunc[C]) *Builder[C] {
	return b.Step(name, execute, compensate, NonCritical[C]())
}

// RetryableStep appends a critical step with a step-local retry policy.
func (b *Builder[C]) RetryableStep(name string, execute ExecuteFunc[C], compensate CompensateFunc[C], retries int, delay time.Duration) *Builder[C] {
	return b.Step(name, execute, compensate, WithRetries[C](retries, delay))
}

// WithLogger wires a logger into the built orchestrator.
func (b *Builder[C]) WithLogger(log logger.Logger) *Builder[C] {
	b.log = log
	return b
}

// WithMetrics wires a metrics recorder into the built orchestrator.
func (b *Builder[C]) WithMetrics(metrics MetricsRecorder) *Builder[C] {
	b.metrics = metrics
	return b
}

// WithExecutionStore wires persistence for execution projections. The store
// is written after every state change; a store error never fails the saga.
func (b *Builder[C]) WithExecutionStore(store ExecutionStore) *Builder[C] {
	b.store = store
	return b
}

// Build validates the step list and returns the orchestrator.
func (b *Builder[C]) Build() (*Orchestrator[C], error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if b.name == "" {
		return nil, fmt.Errorf("saga name cannot be empty")
	}
	if len(b.steps) == 0 {
		return nil, fmt.Errorf("saga must define at least one step")
	}
	for _, step := range b.steps {
		if step.Name == "" {
			return nil, fmt.Errorf("step name cannot be empty")
		}
		if step.Execute == nil {
			return nil, fmt.Errorf("step %q missing execute function", step.Name)
		}
		if step.Retries < 0 {
			return nil, fmt.Errorf("step %q retries cannot be negative", step.Name)
		}
		if step.RetryDelay < 0 {
			return nil, fmt.Errorf("step %q retry delay cannot be negative", step.Name)
		}
	}

	log := b.log
	if log == nil {
		log = logger.Global()
	}
	metrics := b.metrics
	if metrics == nil {
		metrics = &nopMetricsRecorder{}
	}

	steps := make([]*Step[C], len(b.steps))
	copy(steps, b.steps)
	return &Orchestrator[C]{
		name:    b.name,
		steps:   steps,
		log:     log,
		metrics: metrics,
		store:   b.store,
	}, nil
}
