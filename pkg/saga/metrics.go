package saga

import "time"

// MetricsRecorder receives the orchestrator's runtime signals. The metrics
// package implements it on Prometheus; orchestrators built without
// WithMetrics fall back to the no-op recorder.
type MetricsRecorder interface {
	RecordSagaExecution(status string)
	RecordSagaDuration(status string, duration time.Duration)
	IncActiveSagas()
	DecActiveSagas()
	RecordCompensation(status string)
	RecordCompensationDuration(duration time.Duration)
	RecordStepRetry(saga, step string)
}

type nopMetricsRecorder struct{}

func (n *nopMetricsRecorder) RecordSagaExecution(status string)                        {}
func (n *nopMetricsRecorder) RecordSagaDuration(status string, duration time.Duration) {}
func (n *nopMetricsRecorder) IncActiveSagas()                                          {}
func (n *nopMetricsRecorder) DecActiveSagas()                                          {}
func (n *nopMetricsRecorder) RecordCompensation(status string)                         {}
func (n *nopMetricsRecorder) RecordCompensationDuration(duration time.Duration)        {}
func (n *nopMetricsRecorder) RecordStepRetry(saga, step string)                        {}
