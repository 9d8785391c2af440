package cachestore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_cache_hits",
	Help: "Number of cache hits, by backend and namespace",
}, []string{"backend", "name"})

var cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_cache_misses",
	Help: "Number of cache misses, by backend and namespace",
}, []string{"backend", "name"})
