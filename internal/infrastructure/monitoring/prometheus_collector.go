package monitoring

import (
	"chatwarden/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exports command dispatch and pyramid detection metrics.
// It implements ports.MetricsSink.
type PrometheusCollector struct {
	commandsTotal  *prometheus.CounterVec
	commandLatency *prometheus.HistogramVec
	pyramidsTotal  *prometheus.CounterVec
	pyramidStrikes prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		commandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chatwarden_commands_dispatched_total",
			Help: "Total number of command dispatches by outcome",
		}, []string{"channel", "command", "outcome"}),

		commandLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatwarden_command_latency_seconds",
			Help:    "Latency of command handling from receipt to result",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"command"}),

		pyramidsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chatwarden_pyramids_blocked_total",
			Help: "Total number of pyramids interrupted per channel",
		}, []string{"channel"}),

		pyramidStrikes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatwarden_pyramid_strike_count",
			Help:    "Strike count observed at each pyramid detection",
			Buckets: []float64{1, 2, 3, 4, 5, 10},
		}),
	}
}

func (p *PrometheusCollector) PublishCommandMetric(m domain.CommandMetric) {
	outcome := "denied"
	if m.Success {
		outcome = "success"
	}
	p.commandsTotal.WithLabelValues(string(m.Channel), string(m.Command), outcome).Inc()
	p.commandLatency.WithLabelValues(string(m.Command)).Observe(m.Latency.Seconds())
}

func (p *PrometheusCollector) PublishPyramidMetric(d domain.PyramidDetection) {
	p.pyramidsTotal.WithLabelValues(string(d.Channel)).Inc()
	p.pyramidStrikes.Observe(float64(d.Strikes))
}
