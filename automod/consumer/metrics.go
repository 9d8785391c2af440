package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_consumer_events_received",
	Help: "Number of event lines received",
})

var eventsFlagged = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_consumer_events_flagged",
	Help: "Number of events which produced a violation",
})

var eventsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_consumer_events_failed",
	Help: "Number of events which could not be processed",
}, []string{"stage"})
