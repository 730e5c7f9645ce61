package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
)

var _ Publisher = (*SaramaPublisher)(nil)

// SaramaPublisher publishes with a sarama SyncProducer.
type SaramaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewSaramaConfig returns the producer settings used by NewSaramaPublisher:
// wait for every in-sync replica and retry up to retries times.
func NewSaramaConfig(retries int) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = retries
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return cfg
}

func NewSaramaPublisher(brokers []string, topic string, cfg *sarama.Config) (*SaramaPublisher, error) {
	if cfg == nil {
		cfg = NewSaramaConfig(5)
	}
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %v", brokers)
	}
	return WrapSyncProducer(producer, topic), nil
}

// WrapSyncProducer publishes to topic through an existing producer.
func WrapSyncProducer(producer sarama.SyncProducer, topic string) *SaramaPublisher {
	return &SaramaPublisher{producer: producer, topic: topic}
}

// Publish sends msg synchronously. ctx is only checked before sending, a
// SyncProducer cannot be interrupted.
func (p *SaramaPublisher) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pm := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(msg.Value),
	}
	if msg.Key != nil {
		pm.Key = sarama.ByteEncoder(msg.Key)
	}
	for _, h := range msg.Headers {
		pm.Headers = append(pm.Headers, sarama.RecordHeader{Key: []byte(h.Key), Value: h.Value})
	}
	if _, _, err := p.producer.SendMessage(pm); err != nil {
		return errors.Wrapf(err, "send to %s", p.topic)
	}
	return nil
}

func (p *SaramaPublisher) Topic() string { return p.topic }

func (p *SaramaPublisher) Close() error { return p.producer.Close() }
