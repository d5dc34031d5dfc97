package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// LocationProcessor обработчик одной точки (service.LocationService)
type LocationProcessor interface {
	Process(ctx context.Context, update domain.LocationUpdate) error
}

// LocationConsumer группа консьюмеров топика координат
type LocationConsumer struct {
	group     sarama.ConsumerGroup
	topic     string
	processor LocationProcessor
	log       *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLocationConsumer(cfg *Config, processor LocationProcessor, log *logger.Logger) (*LocationConsumer, error) {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Consumer.Group, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group %s: %w", cfg.Consumer.Group, err)
	}
	return &LocationConsumer{
		group:     group,
		topic:     cfg.Consumer.Topic,
		processor: processor,
		log:       log.Named("location-consumer"),
	}, nil
}

// Start запускает цикл потребления в фоне
func (c *LocationConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.log.Warnw("Consumer group error", "error", err)
		}
	}()
	go func() {
		defer c.wg.Done()
		handler := &locationHandler{processor: c.processor, log: c.log}
		for {
			// Consume возвращается при каждой ребалансировке
			if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.log.Errorw("Consume failed", "topic", c.topic, "error", err)
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	c.log.Infow("Location consumer started", "topic", c.topic)
}

// Close останавливает потребление и выходит из группы
func (c *LocationConsumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.group.Close()
	c.wg.Wait()
	return err
}

// locationHandler реализует sarama.ConsumerGroupHandler
type locationHandler struct {
	processor LocationProcessor
	log       *logger.Logger
}

func (h *locationHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *locationHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *locationHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handle(session.Context(), msg); err != nil {
				// без отметки сообщение перечитается после ребалансировки
				return err
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// handle битые сообщения пропускаются, ошибки хранилища возвращаются
func (h *locationHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var update domain.LocationUpdate
	if err := json.Unmarshal(msg.Value, &update); err != nil {
		h.log.Warnw("Malformed location message skipped", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return nil
	}
	if update.VehicleNumber == "" && len(msg.Key) > 0 {
		update.VehicleNumber = string(msg.Key)
	}
	return h.processor.Process(ctx, update)
}
