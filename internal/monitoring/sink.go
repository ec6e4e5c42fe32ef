package monitoring

import (
	"github.com/adred-codev/metricstream/internal/ring"
	"github.com/rs/zerolog"
)

// DecisionSink matches ratelimit.Sink's shape without importing that
// package, so MultiSink can compose any emitter (LogSink, NATSSink) by
// structural typing.
type DecisionSink interface {
	Emit(clientID string, event ring.DecisionEvent)
}

// LogSink is the required monitoring collaborator (C6's Sink): every
// decision event is logged structurally and counted in Prometheus. It
// never blocks beyond a zerolog write, matching spec.md §9's synchronous
// emit() resolution.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "ratelimit_sink").Logger()}
}

// Emit implements ratelimit.Sink.
func (s *LogSink) Emit(clientID string, event ring.DecisionEvent) {
	allowed := "true"
	if !event.Allowed {
		allowed = "false"
	}
	RateLimitDecisionsTotal.WithLabelValues(allowed).Inc()

	s.logger.Debug().
		Str("client_id", clientID).
		Int64("at", event.At).
		Bool("allowed", event.Allowed).
		Msg("rate limit decision")
}

// MultiSink fans a decision event out to every configured sink. Used to
// compose LogSink with the optional NATS republish sink.
type MultiSink struct {
	sinks []DecisionSink
}

// NewMultiSink constructs a MultiSink from one or more sinks.
func NewMultiSink(sinks ...DecisionSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Emit(clientID string, event ring.DecisionEvent) {
	for _, s := range m.sinks {
		s.Emit(clientID, event)
	}
}
