// Package kafka wraps a franz-go client for publishing audit events.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"certify/pkg/platform/audit"
)

// Producer publishes audit events to a single topic.
type Producer struct {
	client *kgo.Client
	topic  string
}

// New connects to brokers. The client is lazy: no broker is dialled until
// the first request.
func New(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.RecordDeliveryTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	return &Producer{client: client, topic: topic}, nil
}

// EnsureTopic creates the topic with a single partition so consumers see
// events in ledger order. An existing topic is left alone.
func (p *Producer) EnsureTopic(ctx context.Context) error {
	admin := kadm.NewClient(p.client)
	resp, err := admin.CreateTopic(ctx, 1, -1, nil, p.topic)
	if err != nil {
		return fmt.Errorf("kafka: create topic %s: %w", p.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("kafka: create topic %s: %w", p.topic, resp.Err)
	}
	return nil
}

// Publish sends events synchronously, in order.
func (p *Producer) Publish(ctx context.Context, events []audit.Event) error {
	records := make([]*kgo.Record, 0, len(events))
	for _, e := range events {
		rec, err := Record(e)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	return p.client.ProduceSync(ctx, records...).FirstErr()
}

// Ping checks that at least one broker answers.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Producer) Close() {
	if p != nil && p.client != nil {
		p.client.Close()
	}
}

// Record encodes an event as a kafka record keyed by the affected id.
func Record(e audit.Event) (*kgo.Record, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("kafka: encode event %d: %w", e.Seq, err)
	}
	return &kgo.Record{
		Key:   []byte(e.AffectedID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "seq", Value: []byte(strconv.FormatUint(e.Seq, 10))},
			{Key: "operation", Value: []byte(e.Operation)},
			{Key: "category", Value: []byte(e.Operation.Category())},
		},
		Timestamp: e.Timestamp,
	}, nil
}
