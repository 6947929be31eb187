// Package netmetrics exposes the prometheus counters netconn's listener
// and per-connection engines update as connections come and go.
package netmetrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OnlineConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "netconn_online_connections",
		Help: "Current number of live connections across all listeners",
	})
	Accepted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netconn_accepted_total",
		Help: "Accepted connections by transport",
	}, []string{"transport"})
	Rejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netconn_rejected_total",
		Help: "Connections rejected by admission control, by reason",
	}, []string{"reason"})
	Errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netconn_errors_total",
		Help: "Fatal engine errors by kind",
	}, []string{"kind"})
	Bytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netconn_bytes_total",
		Help: "Bytes moved by direction",
	}, []string{"dir"})
	Messages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netconn_messages_total",
		Help: "Messages moved by direction and opcode",
	}, []string{"dir", "op"})
	OversizeDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netconn_oversize_drops_total",
		Help: "Frames dropped for exceeding a size limit, by kind",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		OnlineConnections, Accepted, Rejected, Errors, Bytes, Messages, OversizeDrops,
	)
}
