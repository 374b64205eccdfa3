// Package seckill — Prometheus instrumentation for admission decisions.
//
// One counter vector, labeled by outcome, keeps cardinality fixed while
// answering the questions that matter during a sale: how many admits, how
// many of each rejection, how many infrastructure errors.
package seckill

import "github.com/prometheus/client_golang/prometheus"

// admissionOutcomes counts purchase decisions by outcome. Outcomes:
// admitted, out_of_stock, duplicate, not_started, ended, unknown_sale,
// error.
var admissionOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "seckill_admissions_total",
		Help: "Flash-sale admission decisions by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(admissionOutcomes)
}
