// Package kafka forwards raw records to an external Kafka topic.
package kafka

import "context"

// Header is a Kafka record header.
type Header struct {
	Key   string
	Value []byte
}

// Message is one record to publish.
type Message struct {
	Key     []byte
	Value   []byte
	Headers []Header
}

// Publisher sends messages to a single topic and returns once the broker
// acknowledged them.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Topic() string
	Close() error
}
