package proxy

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the proxy's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	tunnelsActive       prometheus.Gauge
	tunnelsTotal        *prometheus.CounterVec
	tunnelBytesTotal    *prometheus.CounterVec
	passthroughRequests *prometheus.CounterVec
}

// NewMetrics creates the proxy collectors and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	tunnelsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hostproxy", Name: "tunnels_active",
		Help: "Number of CONNECT tunnels currently relaying.",
	})
	registerer.MustRegister(tunnelsActive)

	tunnelsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostproxy",
			Name:      "tunnels_total",
			Help:      "CONNECT requests by final outcome.",
		},
		[]string{"outcome"},
	)
	registerer.MustRegister(tunnelsTotal)

	tunnelBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostproxy",
			Name:      "tunnel_bytes_total",
			Help:      "Bytes relayed through CONNECT tunnels.",
		},
		[]string{"direction"},
	)
	registerer.MustRegister(tunnelBytesTotal)

	passthroughRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostproxy",
			Name:      "passthrough_requests_total",
			Help:      "Plain HTTP requests by outcome.",
		},
		[]string{"outcome"},
	)
	registerer.MustRegister(passthroughRequests)

	return &Metrics{
		tunnelsActive:       tunnelsActive,
		tunnelsTotal:        tunnelsTotal,
		tunnelBytesTotal:    tunnelBytesTotal,
		passthroughRequests: passthroughRequests,
	}
}

func (m *Metrics) tunnelOpened() {
	if m == nil {
		return
	}
	m.tunnelsActive.Inc()
}

func (m *Metrics) tunnelClosed(stats Stats) {
	if m == nil {
		return
	}
	m.tunnelsActive.Dec()
	m.tunnelsTotal.WithLabelValues(string(OutcomeClosed)).Inc()
	m.tunnelBytesTotal.WithLabelValues("client_to_server").Add(float64(stats.ClientToServer))
	m.tunnelBytesTotal.WithLabelValues("server_to_client").Add(float64(stats.ServerToClient))
}

func (m *Metrics) tunnelFailed(outcome Outcome) {
	if m == nil {
		return
	}
	m.tunnelsTotal.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) passthroughDone(outcome Outcome) {
	if m == nil {
		return
	}
	m.passthroughRequests.WithLabelValues(string(outcome)).Inc()
}
