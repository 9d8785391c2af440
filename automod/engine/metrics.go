package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "warden_event_duration_sec",
	Help: "Total duration of event processing",
})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_event_processed",
	Help: "Number of events processed",
}, []string{"type"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_event_errors",
	Help: "Number of events which failed processing",
}, []string{"type"})

var violationCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_violations",
	Help: "Number of violations detected, by channel",
}, []string{"channel"})

var actionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_actions",
	Help: "Number of sanctions dispatched, by kind and outcome",
}, []string{"kind", "outcome"})

var sanctionWithheldCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_sanctions_withheld",
	Help: "Number of sanctions downgraded by the daily quota circuit breaker",
}, []string{"kind"})
