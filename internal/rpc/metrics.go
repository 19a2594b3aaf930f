package rpc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/klingon-exchange/depositaddr/internal/chain"
)

// Metrics holds the Prometheus collectors of one server. Each server owns a
// registry so several can run in one process.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	verifications *prometheus.CounterVec
	derivations   *prometheus.CounterVec
}

func newMetrics(network chain.Network, subscribers func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "depositaddr_rpc_requests_total",
				Help: "JSON-RPC requests by method and result code.",
			},
			[]string{"method", "code"}),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "depositaddr_rpc_request_duration_seconds",
				Help:    "JSON-RPC request latency by method.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"}),
		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "depositaddr_verifications_total",
				Help: "Verification runs by chain and outcome.",
			},
			[]string{"chain", "result"}),
		derivations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "depositaddr_derivations_total",
				Help: "Offline deposit address derivations by chain.",
			},
			[]string{"chain"}),
	}

	info := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "depositaddr_info",
			Help: "Static build and network information.",
		},
		[]string{"version", "network", "registry_version"})
	info.WithLabelValues(Version, string(network), strconv.Itoa(chain.RegistryVersion)).Set(1)

	startTime := time.Now()
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.verifications,
		m.derivations,
		info,
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "depositaddr_uptime_seconds",
				Help: "Uptime of the server in seconds.",
			},
			func() float64 {
				return time.Since(startTime).Seconds()
			}),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "depositaddr_ws_clients",
				Help: "Connected WebSocket clients.",
			},
			func() float64 {
				return float64(subscribers())
			}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeRequest(method string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) observeVerification(chainName, result string) {
	m.verifications.WithLabelValues(chainName, result).Inc()
}

func (m *Metrics) observeDerivation(chainName string) {
	m.derivations.WithLabelValues(chainName).Inc()
}
