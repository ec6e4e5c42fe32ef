package writer

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaMirrorSink is the optional secondary durable-writer mirror sink
// (domain stack): a fire-and-forget franz-go producer that never blocks
// or fails the primary FileSink append. Enabled by KAFKA_BROKERS.
type KafkaMirrorSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaMirrorSink dials brokers and constructs a mirror that produces
// to topic.
func NewKafkaMirrorSink(brokers []string, topic string) (*KafkaMirrorSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, err
	}
	return &KafkaMirrorSink{client: client, topic: topic}, nil
}

// Mirror produces record asynchronously; ProduceSync would couple the
// caller to broker latency, which the mirror must never do. Delivery
// failures are not reported: the produce promise is nil and Mirror always
// returns nil, so they are neither logged nor counted.
func (s *KafkaMirrorSink) Mirror(record []byte) error {
	s.client.Produce(context.Background(), &kgo.Record{
		Topic: s.topic,
		Value: record,
	}, nil)
	return nil
}

// Close flushes outstanding produces and releases the client's connections.
func (s *KafkaMirrorSink) Close() {
	_ = s.client.Flush(context.Background())
	s.client.Close()
}
