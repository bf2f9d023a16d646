package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	automatedCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patron_blocks_automated_cache_requests_total",
			Help: "Automated block cache lookups by result",
		},
		[]string{"result"},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patron_blocks_events_published_total",
			Help: "Block events published to RabbitMQ by outcome",
		},
		[]string{"outcome"},
	)
)
