package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/gateline/gateline/pkg/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ExecuteOption customizes one saga execution.
type ExecuteOption func(cfg *executeConfig)

// WithSagaID overrides the generated saga ID.
func WithSagaID(sagaID string) ExecuteOption {
	return func(cfg *executeConfig) {
		if sagaID != "" {
			cfg.sagaID = sagaID
		}
	}
}

// WithTimeout bounds the whole execution. Expiry fails the in-flight step if
// it observes the context, otherwise the next step boundary, and triggers
// reverse compensation of everything completed. Work a step finished before
// the expiry was noticed is committed, so it stays in the compensation set.
func WithTimeout(timeout time.Duration) ExecuteOption {
	return func(cfg *executeConfig) {
		cfg.timeout = timeout
	}
}

// WithStateChange registers a callback invoked with an execution snapshot
// after every state change. The callback must not block.
func WithStateChange(fn func(exec Execution)) ExecuteOption {
	return func(cfg *executeConfig) {
		cfg.onStateChange = fn
	}
}

type executeConfig struct {
	sagaID        string
	timeout       time.Duration
	onStateChange func(exec Execution)
}

// Orchestrator runs an ordered step list against a context value. It is
// purely sequential per execution: steps never run concurrently with each
// other, and the context value is handed off between steps, never shared.
// A single Orchestrator is safe for concurrent executions.
type Orchestrator[C any] struct {
	name    string
	steps   []*Step[C]
	log     logger.Logger
	metrics MetricsRecorder
	store   ExecutionStore
}

// Name returns the saga name.
func (o *Orchestrator[C]) Name() string {
	return o.name
}

// Execute runs the saga from the initial context to a terminal state. It
// never returns an error: the outcome, including failure and compensation
// details, is carried by the Result.
func (o *Orchestrator[C]) Execute(ctx context.Context, initial C, opts ...ExecuteOption) (res Result[C]) {
	cfg := executeConfig{sagaID: uuid.NewString()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	start := time.Now()
	exec := NewExecution(cfg.sagaID, o.name)

	o.metrics.IncActiveSagas()
	defer o.metrics.DecActiveSagas()

	ctx, span := sagaTracer().Start(ctx, spanSagaExecute)
	span.SetAttributes(
		attribute.String("saga.id", cfg.sagaID),
		attribute.String("saga.name", o.name),
	)
	defer span.End()

	sc := initial
	completed := make([]*Step[C], 0, len(o.steps))

	// A panic that escapes a step's own error handling leaves the completed
	// set untrusted, so no compensation is attempted.
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("saga panicked: %v", r)
			o.log.Error("saga execution panicked",
				"saga_id", cfg.sagaID, "saga", o.name, "panic", r)
			exec.SetFailure(FrameworkFailureStep, err)
			_ = exec.TransitionTo(StatusFailed)
			o.notify(ctx, exec, cfg.onStateChange)
			span.SetStatus(codes.Error, err.Error())
			res = o.finishResult(Result[C]{
				Context:        sc,
				CompletedSteps: stepNames(completed),
				FailedStep:     FrameworkFailureStep,
				Err:            err,
			}, cfg.sagaID, start, exec.Status)
		}
	}()

	_ = exec.TransitionTo(StatusRunning)
	o.notify(ctx, exec, cfg.onStateChange)

	for _, step := range o.steps {
		exec.CurrentStep = step.Name
		o.notify(ctx, exec, cfg.onStateChange)

		next, err := o.executeStepWithRetry(ctx, step, sc, cfg.sagaID)
		if err != nil {
			if !step.Critical {
				o.log.WarnContext(ctx, "non-critical saga step failed, continuing",
					"saga_id", cfg.sagaID, "saga", o.name, "step", step.Name, "error", err)
				// The skipped step must not linger as the current one in
				// snapshots emitted before the next step is entered.
				exec.CurrentStep = ""
				o.notify(ctx, exec, cfg.onStateChange)
				continue
			}

			o.log.ErrorContext(ctx, "saga step failed, compensating",
				"saga_id", cfg.sagaID, "saga", o.name, "step", step.Name, "error", err)
			exec.SetFailure(step.Name, err)
			_ = exec.TransitionTo(StatusCompensating)
			o.notify(ctx, exec, cfg.onStateChange)

			compensated, compErrs := o.compensate(ctx, completed, sc, exec, cfg)

			status := StatusCompensated
			if len(compErrs) > 0 {
				status = StatusCompensationFailed
			}
			_ = exec.TransitionTo(status)
			o.notify(ctx, exec, cfg.onStateChange)
			span.SetStatus(codes.Error, err.Error())

			return o.finishResult(Result[C]{
				Context:            sc,
				CompletedSteps:     stepNames(completed),
				FailedStep:         step.Name,
				Err:                err,
				CompensatedSteps:   compensated,
				CompensationErrors: compErrs,
			}, cfg.sagaID, start, status)
		}

		sc = next
		completed = append(completed, step)
		exec.MarkStepCompleted(step.Name)
		o.notify(ctx, exec, cfg.onStateChange)
	}

	exec.CurrentStep = ""
	_ = exec.TransitionTo(StatusCompleted)
	o.notify(ctx, exec, cfg.onStateChange)

	return o.finishResult(Result[C]{
		Success:        true,
		Context:        sc,
		CompletedSteps: stepNames(completed),
	}, cfg.sagaID, start, StatusCompleted)
}

func (o *Orchestrator[C]) executeStepWithRetry(ctx context.Context, step *Step[C], sc C, sagaID string) (C, error) {
	stepCtx, span := sagaTracer().Start(ctx, spanSagaStep)
	span.SetAttributes(
		attribute.String("saga.id", sagaID),
		attribute.String("saga.step", step.Name),
	)
	defer span.End()

	var lastErr error
	for attempt := 0; attempt <= step.Retries; attempt++ {
		if attempt > 0 {
			o.metrics.RecordStepRetry(o.name, step.Name)
			select {
			case <-stepCtx.Done():
				span.SetStatus(codes.Error, stepCtx.Err().Error())
				return sc, stepCtx.Err()
			case <-time.After(step.RetryDelay * time.Duration(attempt)):
			}
		} else if err := stepCtx.Err(); err != nil {
			// An expired deadline is observed before starting the step, never
			// after: a step that returned success did its work, and rewriting
			// that into a failure would drop its context and skip its
			// compensation while the side effects stand.
			span.SetStatus(codes.Error, err.Error())
			return sc, err
		}

		next, err := step.Execute(stepCtx, sc)
		if err == nil {
			return next, nil
		}
		lastErr = err
		if attempt < step.Retries {
			o.log.WarnContext(stepCtx, "saga step attempt failed, retrying",
				"saga_id", sagaID, "step", step.Name,
				"attempt", attempt+1, "max_attempts", step.Retries+1, "error", err)
		}
	}

	span.SetStatus(codes.Error, lastErr.Error())
	return sc, lastErr
}

// compensate runs compensations for completed steps in exact reverse
// completion order. Every compensation is attempted once; errors are
// recorded and never stop the loop.
func (o *Orchestrator[C]) compensate(ctx context.Context, completed []*Step[C], sc C, exec *Execution, cfg executeConfig) ([]string, []StepError) {
	ctx, span := sagaTracer().Start(ctx, spanSagaCompensate)
	span.SetAttributes(attribute.String("saga.id", exec.SagaID))
	defer span.End()

	compStart := time.Now()
	compensated := make([]string, 0, len(completed))
	var errs []StepError

	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if err := o.runCompensation(ctx, step, sc); err != nil {
			o.log.ErrorContext(ctx, "saga compensation failed",
				"saga_id", exec.SagaID, "step", step.Name, "error", err)
			errs = append(errs, StepError{Step: step.Name, Err: err})
		}
		compensated = append(compensated, step.Name)
		exec.MarkStepCompensated(step.Name)
		o.notify(ctx, exec, cfg.onStateChange)
	}

	status := StatusCompensated.String()
	if len(errs) > 0 {
		status = StatusCompensationFailed.String()
	}
	o.metrics.RecordCompensation(status)
	o.metrics.RecordCompensationDuration(time.Since(compStart))
	return compensated, errs
}

// runCompensation isolates one compensation call: a panic inside a
// compensate function is converted into a recorded error.
func (o *Orchestrator[C]) runCompensation(ctx context.Context, step *Step[C], sc C) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compensation for step %s panicked: %v", step.Name, r)
		}
	}()
	return step.Compensate(ctx, sc)
}

func (o *Orchestrator[C]) finishResult(res Result[C], sagaID string, start time.Time, status Status) Result[C] {
	res.SagaID = sagaID
	res.Duration = time.Since(start)
	o.metrics.RecordSagaExecution(status.String())
	o.metrics.RecordSagaDuration(status.String(), res.Duration)
	return res
}

// notify delivers an execution snapshot to the state-change callback and the
// execution store. Store errors are logged, never propagated: persistence of
// the projection is observability, not correctness.
func (o *Orchestrator[C]) notify(ctx context.Context, exec *Execution, onStateChange func(Execution)) {
	snapshot := cloneExecution(exec)
	if onStateChange != nil {
		onStateChange(*snapshot)
	}
	if o.store != nil {
		// Background context: terminal snapshots must still be persisted
		// after a saga-level timeout has expired the execution context.
		if err := o.store.Save(context.Background(), snapshot); err != nil {
			o.log.WarnContext(ctx, "failed to persist saga execution",
				"saga_id", exec.SagaID, "error", err)
		}
	}
}

func stepNames[C any](steps []*Step[C]) []string {
	names := make([]string, 0, len(steps))
	for _, step := range steps {
		names = append(names, step.Name)
	}
	return names
}
