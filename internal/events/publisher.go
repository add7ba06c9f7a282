// Package events publishes recording lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"recording-transcription-service/internal/models"
	"recording-transcription-service/internal/observability/metrics"
	"recording-transcription-service/internal/schema"
)

// Publisher publishes recording events to separate Kafka topics.
type Publisher struct {
	writerCompleted *kafka.Writer
	writerFailed    *kafka.Writer
	principal       string
	topicCompleted  string
	topicFailed     string
	enabled         bool
	validator       *schema.Validator
	metrics         *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers        []string
	TopicCompleted string
	TopicFailed    string
	Principal      string
	Enabled        bool
}

// New creates a publisher. Without brokers, or when disabled, events are
// only validated and logged.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics
	v := schema.New()

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{validator: v, metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:      cfg.Principal,
			topicCompleted: cfg.TopicCompleted,
			topicFailed:    cfg.TopicFailed,
			validator:      v,
			metrics:        m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{Dial: dialer.DialFunc}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicCompleted", cfg.TopicCompleted).
		Str("topicFailed", cfg.TopicFailed).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerCompleted: newWriter(cfg.TopicCompleted),
		writerFailed:    newWriter(cfg.TopicFailed),
		principal:       cfg.Principal,
		topicCompleted:  cfg.TopicCompleted,
		topicFailed:     cfg.TopicFailed,
		enabled:         true,
		validator:       v,
		metrics:         m,
	}
}

// PublishCompleted publishes a recording.completed event keyed by recording id.
func (p *Publisher) PublishCompleted(ctx context.Context, event models.RecordingCompleted) error {
	return p.publish(ctx, p.writerCompleted, p.topicCompleted, event.EventType, event.RecordingID, event)
}

// PublishFailed publishes a recording.failed event keyed by recording id.
func (p *Publisher) PublishFailed(ctx context.Context, event models.RecordingFailed) error {
	return p.publish(ctx, p.writerFailed, p.topicFailed, event.EventType, event.RecordingID, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	if err := p.validator.Validate(event); err != nil {
		log.Error().Err(err).Str("topic", topic).Str("key", key).Msg("Event failed schema validation")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	eventID := xid.New().String()

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		Str("eventId", eventID).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventId", Value: []byte(eventID)},
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerCompleted != nil {
		if e := p.writerCompleted.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing completed writer")
			err = e
		}
	}
	if p.writerFailed != nil {
		if e := p.writerFailed.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing failed writer")
			err = e
		}
	}
	return err
}
