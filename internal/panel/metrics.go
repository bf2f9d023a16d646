package panel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mountsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patron_block_panels_mounted_total",
		Help: "Total number of mounted patron block panels",
	})

	openPanels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "patron_block_panels_open",
		Help: "Number of panels held by the registry",
	})
)
