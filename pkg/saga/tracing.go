package saga

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const sagaTracerName = "gateline.saga"

const (
	spanSagaExecute    = "saga.execute.forward"
	spanSagaStep       = "saga.step.forward"
	spanSagaCompensate = "saga.execute.compensation"
)

func sagaTracer() trace.Tracer {
	return otel.Tracer(sagaTracerName)
}
