package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OrdersTotal counts submitted orders by pair, side and outcome (accepted/rejected).
var OrdersTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "matching_orders_total",
		Help: "Orders submitted to the engine by outcome",
	},
	[]string{"pair", "side", "result"},
)

// TradesTotal counts executed trades by pair
var TradesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "matching_trades_total",
		Help: "Trades executed by the engine",
	},
	[]string{"pair"},
)

// CommandLatency records time spent executing one command inside a lane
var CommandLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "matching_command_latency_seconds",
		Help:    "Latency in seconds to execute a lane command",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	},
	[]string{"pair", "command"},
)

// Lane state
var (
	LaneHalted = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "matching_lane_halted",
			Help: "1 when the pair's lane has halted on a fatal error",
		},
		[]string{"pair"},
	)

	LaneQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "matching_lane_queue_depth",
			Help: "Commands waiting in the pair's lane queue",
		},
		[]string{"pair"},
	)
)

func init() {
	prometheus.MustRegister(OrdersTotal, TradesTotal, CommandLatency)
	prometheus.MustRegister(LaneHalted, LaneQueueDepth)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
