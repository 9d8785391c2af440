package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dispatchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_dispatch_count",
	Help: "Number of moderation actions dispatched, by action kind and outcome",
}, []string{"action", "outcome"})

var noticeCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_notice_count",
	Help: "Number of user notices sent, by outcome",
}, []string{"outcome"})

var auditErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_audit_errors",
	Help: "Number of failed audit sink appends",
})
