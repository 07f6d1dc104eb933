package order

import (
	"context"
	"fmt"
	"time"

	"github.com/gateline/gateline/pkg/logger"
	"github.com/gateline/gateline/pkg/saga"
	"github.com/go-playground/validator/v10"
)

// SagaName identifies the ticket-order saga in execution projections.
const SagaName = "ticket-order"

// MetricsRecorder records order workflow outcomes.
type MetricsRecorder interface {
	RecordOrder(outcome string)
	RecordTicketsIssued(count int)
}

type nopMetricsRecorder struct{}

func (n *nopMetricsRecorder) RecordOrder(outcome string)    {}
func (n *nopMetricsRecorder) RecordTicketsIssued(count int) {}

// Order outcome labels.
const (
	OutcomeCompleted = "completed"
	OutcomeSoldOut   = "sold_out"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Deps are the external collaborators of the workflow.
type Deps struct {
	Catalog   EventCatalog
	Inventory Inventory
	Orders    OrderStore
	Tickets   TicketStore
	Encoder   TicketEncoder
	Mailer    Mailer
	Waitlist  Waitlist
}

func (d Deps) validate() error {
	switch {
	case d.Catalog == nil:
		return fmt.Errorf("event catalog is required")
	case d.Inventory == nil:
		return fmt.Errorf("inventory is required")
	case d.Orders == nil:
		return fmt.Errorf("order store is required")
	case d.Tickets == nil:
		return fmt.Errorf("ticket store is required")
	case d.Encoder == nil:
		return fmt.Errorf("ticket encoder is required")
	case d.Mailer == nil:
		return fmt.Errorf("mailer is required")
	case d.Waitlist == nil:
		return fmt.Errorf("waitlist is required")
	}
	return nil
}

// Config tunes the workflow's saga behavior.
type Config struct {
	// ReserveRetries and ReserveRetryDelay form the step-local retry policy
	// of ReserveInventory. Retrying is safe: the primitive either reserves
	// everything or nothing.
	ReserveRetries    int
	ReserveRetryDelay time.Duration

	// Timeout bounds a whole purchase execution; zero means unbounded.
	Timeout time.Duration
}

// Option customizes workflow construction.
type Option func(w *Workflow)

// WithLogger wires a logger.
func WithLogger(log logger.Logger) Option {
	return func(w *Workflow) {
		if log != nil {
			w.log = log
		}
	}
}

// WithMetrics wires order outcome metrics.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(w *Workflow) {
		if metrics != nil {
			w.metrics = metrics
		}
	}
}

// WithSagaMetrics wires saga runtime metrics into the orchestrator.
func WithSagaMetrics(metrics saga.MetricsRecorder) Option {
	return func(w *Workflow) {
		w.sagaMetrics = metrics
	}
}

// WithExecutionStore wires persistence for saga execution projections.
func WithExecutionStore(store saga.ExecutionStore) Option {
	return func(w *Workflow) {
		w.store = store
	}
}

// Workflow runs ticket purchases as sagas.
type Workflow struct {
	catalog   EventCatalog
	inventory Inventory
	orders    OrderStore
	tickets   TicketStore
	encoder   TicketEncoder
	mailer    Mailer
	waitlist  Waitlist

	cfg         Config
	log         logger.Logger
	metrics     MetricsRecorder
	sagaMetrics saga.MetricsRecorder
	store       saga.ExecutionStore
	validate    *validator.Validate

	orch *saga.Orchestrator[OrderContext]
}

// NewWorkflow builds the ticket-order saga against the given collaborators.
func NewWorkflow(deps Deps, cfg Config, opts ...Option) (*Workflow, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if cfg.ReserveRetries < 0 {
		return nil, fmt.Errorf("reserve retries cannot be negative")
	}

	w := &Workflow{
		catalog:   deps.Catalog,
		inventory: deps.Inventory,
		orders:    deps.Orders,
		tickets:   deps.Tickets,
		encoder:   deps.Encoder,
		mailer:    deps.Mailer,
		waitlist:  deps.Waitlist,
		cfg:       cfg,
		log:       logger.Global(),
		metrics:   &nopMetricsRecorder{},
		validate:  validator.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}

	builder := saga.New[OrderContext](SagaName).
		Step(StepLoadEvent, w.loadEvent, nil).
		RetryableStep(StepReserveInventory, w.reserveInventory, w.releaseInventory, cfg.ReserveRetries, cfg.ReserveRetryDelay).
		Step(StepCreateOrder, w.createOrder, w.cancelOrder).
		Step(StepGenerateTickets, w.generateTickets, w.cancelTickets).
		OptionalStep(StepSendEmail, w.sendEmail, nil).
		OptionalStep(StepUpdateWaitlist, w.updateWaitlist, nil).
		WithLogger(w.log)
	if w.sagaMetrics != nil {
		builder = builder.WithMetrics(w.sagaMetrics)
	}
	if w.store != nil {
		builder = builder.WithExecutionStore(w.store)
	}

	orch, err := builder.Build()
	if err != nil {
		return nil, err
	}
	w.orch = orch
	return w, nil
}

// Result is the caller-facing outcome of one purchase.
type Result struct {
	Success            bool
	Order              *Order
	LineItems          []LineItem
	TicketPayloads     []TicketPayload
	EmailSent          bool
	WaitlistConverted  bool
	SagaID             string
	Duration           time.Duration
	Err                error
	FailedStep         string
	CompensatedSteps   []string
	CompensationErrors []saga.StepError
}

// Execute validates the input, runs the saga and normalizes the outcome.
// Like the orchestrator it never returns an error; callers branch on
// Result.Success and map Err to a user-facing message.
func (w *Workflow) Execute(ctx context.Context, input Input, opts ...saga.ExecuteOption) Result {
	if err := w.validate.Struct(&input); err != nil {
		w.metrics.RecordOrder(OutcomeRejected)
		return Result{Err: fmt.Errorf("%w: %v", ErrInvalidInput, err)}
	}

	execOpts := opts
	if w.cfg.Timeout > 0 {
		execOpts = append([]saga.ExecuteOption{saga.WithTimeout(w.cfg.Timeout)}, opts...)
	}

	res := w.orch.Execute(ctx, OrderContext{Input: input}, execOpts...)

	result := Result{
		Success:            res.Success,
		Order:              res.Context.Order,
		LineItems:          res.Context.LineItems,
		TicketPayloads:     res.Context.EmailPayloads,
		EmailSent:          res.Context.EmailSent,
		WaitlistConverted:  res.Context.WaitlistConverted,
		SagaID:             res.SagaID,
		Duration:           res.Duration,
		Err:                res.Err,
		FailedStep:         res.FailedStep,
		CompensatedSteps:   res.CompensatedSteps,
		CompensationErrors: res.CompensationErrors,
	}

	switch {
	case res.Success:
		w.metrics.RecordOrder(OutcomeCompleted)
		w.metrics.RecordTicketsIssued(len(res.Context.Tickets))
	case IsSoldOut(res.Err):
		w.metrics.RecordOrder(OutcomeSoldOut)
	default:
		w.metrics.RecordOrder(OutcomeFailed)
	}
	return result
}
