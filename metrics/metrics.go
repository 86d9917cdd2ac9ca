// Package metrics exposes the prometheus collectors shared across the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallbacksTotal counts inbound gateway notifications by routed type and outcome.
	CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rentflow",
		Name:      "payment_callbacks_total",
		Help:      "Inbound payment gateway callbacks by type and outcome.",
	}, []string{"type", "outcome"})

	// RefundsTotal counts terminal refund outcomes.
	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rentflow",
		Name:      "refunds_total",
		Help:      "Terminal refund outcomes.",
	}, []string{"status"})
)
