package monitoring

import (
	"encoding/json"
	"time"

	"github.com/adred-codev/metricstream/internal/ring"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSSink republishes rate-limit decisions to NATS subject
// "metricstream.decisions.<client_id>" for external observers (domain
// stack addition; C6 itself only requires the synchronous LogSink).
// Connection lifecycle grounded on src/server.go's NATS setup
// (nats.Connect with bounded reconnect attempts).
type NATSSink struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// NewNATSSink dials url and returns a sink publishing to it.
func NewNATSSink(url string, logger zerolog.Logger) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.MaxReconnects(5), nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, err
	}
	return &NATSSink{conn: conn, logger: logger.With().Str("component", "nats_sink").Logger()}, nil
}

type decisionMessage struct {
	ClientID string `json:"client_id"`
	At       int64  `json:"at"`
	Allowed  bool   `json:"allowed"`
}

// Emit publishes the decision; publish failures are logged, never
// propagated, since a monitoring sink must never affect C3's hot path.
func (s *NATSSink) Emit(clientID string, event ring.DecisionEvent) {
	payload, err := json.Marshal(decisionMessage{ClientID: clientID, At: event.At, Allowed: event.Allowed})
	if err != nil {
		return
	}
	subject := "metricstream.decisions." + clientID
	if err := s.conn.Publish(subject, payload); err != nil {
		s.logger.Warn().Err(err).Str("client_id", clientID).Msg("nats sink: publish failed")
	}
}

// Close closes the underlying connection.
func (s *NATSSink) Close() {
	s.conn.Close()
}
