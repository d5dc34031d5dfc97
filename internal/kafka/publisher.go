package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

const eventTypeHeader = "event_type"

// Publisher публикует доменные события в Kafka в виде JSON
type Publisher struct {
	producer   sarama.SyncProducer
	log        *logger.Logger
	newBackOff func() backoff.BackOff
}

// NewPublisher подключает синхронного продюсера к брокерам
func NewPublisher(cfg *Config, log *logger.Logger) (*Publisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	log.Infow("Kafka producer connected", "brokers", cfg.Brokers)
	return NewPublisherWithProducer(producer, log), nil
}

// NewPublisherWithProducer публикатор поверх готового продюсера
func NewPublisherWithProducer(producer sarama.SyncProducer, log *logger.Logger) *Publisher {
	return &Publisher{
		producer:   producer,
		log:        log.Named("kafka"),
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithMaxRetries(b, 3)
}

// Publish отправляет событие с заголовком event_type, повторяя временные ошибки
func (p *Publisher) Publish(ctx context.Context, topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", topic, err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte(eventTypeHeader),
				Value: []byte(topic),
			},
		},
		Timestamp: time.Now(),
	}

	var partition int32
	var offset int64
	send := func() error {
		var sendErr error
		partition, offset, sendErr = p.producer.SendMessage(message)
		if sendErr != nil {
			p.log.Warnw("Kafka send failed, retrying", "topic", topic, "error", sendErr)
		}
		return sendErr
	}

	if err := backoff.Retry(send, backoff.WithContext(p.newBackOff(), ctx)); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", topic, err)
	}

	p.log.Debugw("Published event", "topic", topic, "key", key, "partition", partition, "offset", offset)
	return nil
}

// Close закрывает продюсер
func (p *Publisher) Close() error {
	return p.producer.Close()
}
