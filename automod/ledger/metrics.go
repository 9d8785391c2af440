package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ledgerOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_ledger_ops",
	Help: "Number of ledger operations, by operation and outcome",
}, []string{"op", "outcome"})

var ledgerDecayPruned = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_ledger_decay_pruned",
	Help: "Number of violations expired by ledger decay passes",
})
