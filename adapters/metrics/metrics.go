// Package metrics provides Prometheus metrics for the operation
// kernel.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the kernel.
type Collector struct {
	DispatchesTotal  *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
}

// New creates a collector registered on the default registry.
func New() *Collector {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates a collector registered on the given registerer.
func NewWith(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		DispatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opkernel",
				Name:      "dispatches_total",
				Help:      "Total number of dispatched operation calls",
			},
			[]string{"model", "op", "status"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "opkernel",
				Name:      "dispatch_duration_seconds",
				Help:      "Dispatch duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"model", "op"},
		),
	}
}

// ObserveDispatch records one dispatched call.
func (c *Collector) ObserveDispatch(model, op string, status int, d time.Duration) {
	c.DispatchesTotal.WithLabelValues(model, op, strconv.Itoa(status)).Inc()
	c.DispatchDuration.WithLabelValues(model, op).Observe(d.Seconds())
}
