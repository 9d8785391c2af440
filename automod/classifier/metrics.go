package classifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var classifierAPIDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "warden_classifier_api_duration_sec",
	Help: "Duration of remote classifier API calls",
})

var classifierAPICount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_classifier_api_count",
	Help: "Number of remote classifier API calls, by HTTP status code",
}, []string{"status"})

var classifierVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_classifier_verdicts",
	Help: "Number of classifier adapter outcomes (safe, unsafe, none)",
}, []string{"outcome"})
