package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkflowTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reports",
		Name:      "workflow_transitions_total",
		Help:      "Report workflow operations by action and result code.",
	}, []string{"action", "result"})

	Summaries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reports",
		Name:      "summaries_total",
		Help:      "Generated summaries by source.",
	}, []string{"source"})

	ChangeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reports",
		Name:      "change_events_total",
		Help:      "Published change notifications by entity.",
	}, []string{"entity"})

	RemindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reports",
		Name:      "reminders_sent_total",
		Help:      "Reviewer reminders delivered.",
	})
)

// ObserveTransition records a workflow operation. An empty code means success.
func ObserveTransition(action, code string) {
	if code == "" {
		code = "ok"
	}
	WorkflowTransitions.WithLabelValues(action, code).Inc()
}
