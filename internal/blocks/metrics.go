package blocks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patron_blocks_expired_total",
			Help: "Total number of expired manual blocks removed",
		},
		[]string{"source"},
	)

	expiryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patron_blocks_expiry_failures_total",
			Help: "Total number of expired manual blocks that could not be removed",
		},
		[]string{"source"},
	)
)
