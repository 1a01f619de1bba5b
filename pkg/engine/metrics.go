package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "workflow",
		Name:      "executions_started_total",
		Help:      "Executions started, routed or direct.",
	})

	executionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "workflow",
		Name:      "executions_completed_total",
		Help:      "Executions that reached a terminal success.",
	})

	executionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "workflow",
		Name:      "executions_failed_total",
		Help:      "Executions that reached a terminal failure.",
	})

	executionsSuspended = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "workflow",
		Name:      "executions_suspended_total",
		Help:      "Suspensions acknowledged while waiting for user input.",
	})

	stepsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workflow",
		Name:      "steps_executed_total",
		Help:      "Step handler dispatches by action type and outcome.",
	}, []string{"action_type", "outcome"})
)

func recordStep(actionType string, r result) {
	outcome := "success"
	switch r.kind {
	case kindFailure:
		outcome = "failure"
	case kindSuspend:
		outcome = "suspend"
	}
	stepsExecuted.WithLabelValues(actionType, outcome).Inc()
}
