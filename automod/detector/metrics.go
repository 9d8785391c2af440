package detector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var detectorHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_detector_hits",
	Help: "Number of violations produced, by detection channel",
}, []string{"channel"})
