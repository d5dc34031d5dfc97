package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

const (
	DefaultLocationTopic = "vehicle-location-update"
	DefaultLocationGroup = "vehicle-location-processor"
)

// Config конфигурация для Kafka
type Config struct {
	Brokers  []string
	ClientID string
	Producer ProducerConfig
	Consumer ConsumerConfig
	Topics   TopicConfig
}

// ProducerConfig конфигурация для продюсера
type ProducerConfig struct {
	MaxMessageBytes  int
	Compression      sarama.CompressionCodec
	RequiredAcks     sarama.RequiredAcks
	FlushMaxMessages int
	Timeout          time.Duration
}

// ConsumerConfig конфигурация для консьюмера координат
type ConsumerConfig struct {
	Group             string
	Topic             string
	InitialOffset     int64
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
}

// TopicConfig параметры создаваемых топиков
type TopicConfig struct {
	Partitions        int32
	ReplicationFactor int16
}

// NewConfig создает новую конфигурацию Kafka
func NewConfig(brokers []string) *Config {
	return &Config{
		Brokers:  brokers,
		ClientID: "okdriver-backend",
		Producer: ProducerConfig{
			MaxMessageBytes:  1000000,
			Compression:      sarama.CompressionSnappy,
			RequiredAcks:     sarama.WaitForAll,
			FlushMaxMessages: 100,
			Timeout:          10 * time.Second,
		},
		Consumer: ConsumerConfig{
			Group:             DefaultLocationGroup,
			Topic:             DefaultLocationTopic,
			InitialOffset:     sarama.OffsetNewest,
			SessionTimeout:    10 * time.Second,
			HeartbeatInterval: 3 * time.Second,
		},
		Topics: TopicConfig{
			Partitions:        3,
			ReplicationFactor: 1,
		},
	}
}

// NewSaramaConfig создает новую конфигурацию Sarama
func NewSaramaConfig(cfg *Config) *sarama.Config {
	saramaConfig := sarama.NewConfig()

	// Версия Kafka
	saramaConfig.Version = sarama.V3_3_0_0
	saramaConfig.ClientID = cfg.ClientID

	// Настройки продюсера
	saramaConfig.Producer.MaxMessageBytes = cfg.Producer.MaxMessageBytes
	saramaConfig.Producer.Compression = cfg.Producer.Compression
	saramaConfig.Producer.RequiredAcks = cfg.Producer.RequiredAcks
	saramaConfig.Producer.Flush.MaxMessages = cfg.Producer.FlushMaxMessages
	saramaConfig.Producer.Timeout = cfg.Producer.Timeout
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	// Настройки консьюмера
	saramaConfig.Consumer.Group.Session.Timeout = cfg.Consumer.SessionTimeout
	saramaConfig.Consumer.Group.Heartbeat.Interval = cfg.Consumer.HeartbeatInterval
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	saramaConfig.Consumer.Offsets.Initial = cfg.Consumer.InitialOffset
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Return.Errors = true

	return saramaConfig
}
