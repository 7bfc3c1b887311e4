// Package monitoring exposes Prometheus metrics for command dispatch.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	CommandErrors   *prometheus.CounterVec

	// Session metrics
	SessionsActive prometheus.Gauge

	// Transfer metrics
	TransferBytes prometheus.Counter
	TransferFiles prometheus.Counter

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector registered on reg. A nil
// registerer falls back to the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileferry_commands_total",
				Help: "Total number of commands dispatched",
			},
			[]string{"command", "status"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fileferry_command_duration_seconds",
				Help:    "Command handling duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"command"},
		),
		CommandErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileferry_command_errors_total",
				Help: "Command failures by error kind",
			},
			[]string{"command", "kind"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fileferry_sessions_active",
				Help: "Number of live operator sessions",
			},
		),
		TransferBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fileferry_transfer_bytes_total",
				Help: "Total bytes handed to the send-file capability",
			},
		),
		TransferFiles: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fileferry_transfer_files_total",
				Help: "Total file payloads handed to the send-file capability",
			},
		),
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fileferry_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	return m
}

// RecordCommand tracks one dispatched command.
func (m *Metrics) RecordCommand(command, status string, duration time.Duration) {
	m.CommandsTotal.WithLabelValues(command, status).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordError tracks a command failure by taxonomy kind.
func (m *Metrics) RecordError(command, kind string) {
	m.CommandErrors.WithLabelValues(command, kind).Inc()
}

// RecordTransfer tracks an outbound file payload.
func (m *Metrics) RecordTransfer(bytes int64) {
	m.TransferFiles.Inc()
	m.TransferBytes.Add(float64(bytes))
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
