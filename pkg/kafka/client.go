package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Topics used by the service.
const (
	TopicBookingEvents = "booking.events"
)

// Consumer groups. Each group sees every booking event.
const (
	GroupNotifier = "booking-notifier"
	GroupLiveFeed = "booking-live-feed"
)

// Client wraps Kafka operations.
type Client struct {
	brokers []string
	writer  *kafkago.Writer
}

// NewClient returns a Client for the given brokers. Messages with the same
// key land on the same partition.
func NewClient(brokers []string) *Client {
	return &Client{
		brokers: brokers,
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Balancer:               &kafkago.Hash{},
			MaxAttempts:            3,
			WriteTimeout:           10 * time.Second,
			AllowAutoTopicCreation: true,
		},
	}
}

// EnsureTopics creates topics if they don't already exist (with retry).
func (c *Client) EnsureTopics(ctx context.Context, topics ...string) error {
	if len(c.brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	for attempt := 1; attempt <= 20; attempt++ {
		conn, err := kafkago.DialContext(ctx, "tcp", c.brokers[0])
		if err != nil {
			log.Printf("[kafka] not ready, retrying in 3s (%d/20)", attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		configs := make([]kafkago.TopicConfig, len(topics))
		for i, t := range topics {
			configs[i] = kafkago.TopicConfig{Topic: t, NumPartitions: 3, ReplicationFactor: 1}
		}
		err = conn.CreateTopics(configs...)
		conn.Close()
		if err != nil {
			log.Printf("[kafka] topic creation returned (may already exist): %v", err)
		}
		log.Println("[kafka] topics ensured")
		return nil
	}
	return fmt.Errorf("kafka: could not connect after 20 attempts")
}

// Publish sends a JSON-serialised message to a topic.
func (c *Client) Publish(ctx context.Context, topic, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.writer.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}); err != nil {
		return fmt.Errorf("kafka: write to %s: %w", topic, err)
	}
	return nil
}

// Consume reads topic as member of groupID until ctx is cancelled. The offset
// is committed after handler returns, whatever the outcome; handlers log and
// drop what they cannot process.
func (c *Client) Consume(ctx context.Context, topic, groupID string, handler func(context.Context, []byte) error) error {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     c.brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafkago.FirstOffset,
	})
	defer r.Close()

	log.Printf("[kafka] consuming %s as %s", topic, groupID)
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[kafka] read error on %s: %v", topic, err)
			time.Sleep(time.Second)
			continue
		}
		if err := handler(ctx, msg.Value); err != nil {
			log.Printf("[kafka] %s handler error on %s@%d: %v", groupID, topic, msg.Offset, err)
		}
		if err := r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Printf("[kafka] commit on %s: %v", topic, err)
		}
	}
}

// Close flushes and closes the shared writer.
func (c *Client) Close() error { return c.writer.Close() }
