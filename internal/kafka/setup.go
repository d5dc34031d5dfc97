package kafka

import (
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// EnsureTopics проверяет и создает необходимые топики Kafka
func EnsureTopics(cfg *Config, topics []string, log *logger.Logger) error {
	if len(cfg.Brokers) == 0 {
		return errors.New("kafka broker address is empty")
	}

	admin, err := sarama.NewClusterAdmin(cfg.Brokers, NewSaramaConfig(cfg))
	if err != nil {
		log.Errorw("Failed to connect to Kafka for topic creation", "brokers", cfg.Brokers, "error", err)
		return fmt.Errorf("kafka admin connection failed: %w", err)
	}
	defer admin.Close()

	existing, err := admin.ListTopics()
	if err != nil {
		return fmt.Errorf("kafka list topics failed: %w", err)
	}

	for _, topic := range topics {
		if _, ok := existing[topic]; ok {
			log.Debugw("Topic already exists", "topic", topic)
			continue
		}

		detail := &sarama.TopicDetail{
			NumPartitions:     cfg.Topics.Partitions,
			ReplicationFactor: cfg.Topics.ReplicationFactor,
		}
		if err := admin.CreateTopic(topic, detail, false); err != nil {
			if isTopicExists(err) {
				log.Warnw("Topic was created concurrently", "topic", topic)
				continue
			}
			log.Errorw("Failed to create topic", "topic", topic, "error", err)
			return fmt.Errorf("kafka create topic %s failed: %w", topic, err)
		}
		log.Infow("Topic created", "topic", topic, "partitions", detail.NumPartitions)
	}
	return nil
}

func isTopicExists(err error) bool {
	var te *sarama.TopicError
	if errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists {
		return true
	}
	return errors.Is(err, sarama.ErrTopicAlreadyExists)
}
