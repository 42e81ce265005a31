package command

import (
	"context"

	"github.com/pitabwire/trialscope/internal/observability"
)

// MetricsObserver records command executions as Prometheus metrics.
type MetricsObserver struct {
	metrics *observability.Metrics
}

// NewMetricsObserver creates an observer that records to m.
func NewMetricsObserver(m *observability.Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

// OnCommandExecuted implements Observer.
func (o *MetricsObserver) OnCommandExecuted(_ context.Context, event Event) {
	if event.Replayed {
		o.metrics.RecordCommandReplay(event.Intent)
		return
	}
	o.metrics.RecordCommandExecution(event.Intent, event.Status, event.Duration)
}
