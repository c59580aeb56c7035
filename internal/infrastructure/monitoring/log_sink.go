package monitoring

import (
	"chatwarden/internal/core/domain"

	"go.uber.org/zap"
)

// LogSink writes metric records to the structured log. Used when no metrics
// backend is configured, and as the tee target alongside Prometheus.
type LogSink struct {
	logger *zap.SugaredLogger
}

func NewLogSink(logger *zap.SugaredLogger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) PublishCommandMetric(m domain.CommandMetric) {
	s.logger.Infow("command metric",
		"channel", m.Channel,
		"command", m.Command,
		"caller", m.Caller,
		"invoked", m.StartTime,
		"latency_ms", m.Latency.Milliseconds(),
		"success", m.Success,
	)
}

func (s *LogSink) PublishPyramidMetric(d domain.PyramidDetection) {
	s.logger.Infow("pyramid metric",
		"id", d.ID,
		"channel", d.Channel,
		"user", d.User,
		"phrase", d.Phrase,
		"time", d.Time,
		"strikes", d.Strikes,
	)
}

// MultiSink fans records out to several sinks.
type MultiSink []interface {
	PublishCommandMetric(domain.CommandMetric)
	PublishPyramidMetric(domain.PyramidDetection)
}

func (ms MultiSink) PublishCommandMetric(m domain.CommandMetric) {
	for _, s := range ms {
		s.PublishCommandMetric(m)
	}
}

func (ms MultiSink) PublishPyramidMetric(d domain.PyramidDetection) {
	for _, s := range ms {
		s.PublishPyramidMetric(d)
	}
}
