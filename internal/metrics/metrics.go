// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package metrics counts and times register transactions for Prometheus.
package metrics

import (
	"time"

	"github.com/ffutop/carlink/internal/fault"
	"github.com/prometheus/client_golang/prometheus"
)

// OutcomeOK labels a successful transaction. Failures are labelled with
// their fault kind.
const OutcomeOK = "ok"

// Recorder records transactions. A nil *Recorder records nothing.
type Recorder struct {
	transactions *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// New creates a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carlink_transactions_total",
			Help: "Register transactions by operation and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carlink_transaction_duration_seconds",
			Help:    "Duration of register transactions, including port open and close.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"op"}),
	}
	reg.MustRegister(r.transactions, r.duration)
	return r
}

// Observe records one transaction of op that started at start and ended
// with err.
func (r *Recorder) Observe(op string, start time.Time, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = fault.KindOf(err).String()
	}
	r.transactions.WithLabelValues(op, outcome).Inc()
	r.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
