// Package metrics exposes gateway counters on a dedicated Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "uartgw"

type Metrics struct {
	registry *prometheus.Registry

	Packets          *prometheus.CounterVec
	RecordsForwarded *prometheus.CounterVec
	DecodeEmpty      *prometheus.CounterVec
	SendFailures     *prometheus.CounterVec
	SessionsOpen     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Lines read from a serial port.",
		}, []string{"port"}),
		RecordsForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_forwarded_total",
			Help:      "Measures accepted by the sink.",
		}, []string{"port"}),
		DecodeEmpty: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_empty_total",
			Help:      "Lines that decoded to no measures.",
		}, []string{"port"}),
		SendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Measures the sink refused; the rest of the line is skipped.",
		}, []string{"port"}),
		SessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Serial sessions currently reading.",
		}),
	}
	m.registry.MustRegister(
		m.Packets,
		m.RecordsForwarded,
		m.DecodeEmpty,
		m.SendFailures,
		m.SessionsOpen,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer is used by tests to read back values.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
