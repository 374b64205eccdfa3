package queue

import "github.com/prometheus/client_golang/prometheus"

// ordersProcessed counts worker outcomes per delivery: persisted,
// duplicate, sold_out, malformed, retry.
var ordersProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "order_pipeline_deliveries_total",
		Help: "Order pipeline deliveries by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(ordersProcessed)
}
