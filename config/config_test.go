package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.PayU.BaseURL != "https://test.payu.in" {
		t.Errorf("payu base url = %q", cfg.PayU.BaseURL)
	}
	if cfg.PayU.SkipVerify {
		t.Error("skip verify must default to false")
	}
	if cfg.Auth.TokenTTL() != 168*time.Hour {
		t.Errorf("token ttl = %v", cfg.Auth.TokenTTL())
	}
	if cfg.Kafka.Enabled() || cfg.Redis.Enabled() || cfg.NATS.Enabled() || cfg.RabbitMQ.Enabled() {
		t.Error("brokers must be disabled by default")
	}
	if cfg.API.RateLimitPerMinute != 60 {
		t.Errorf("rate limit = %d", cfg.API.RateLimitPerMinute)
	}
	if cfg.App.IsProduction() {
		t.Error("default env must not be production")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("PAYU_KEY", "gtKFFx")
	t.Setenv("PAYU_SKIP_VERIFY", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if !cfg.App.IsProduction() {
		t.Error("expected production")
	}
	if cfg.PayU.Key != "gtKFFx" || !cfg.PayU.SkipVerify {
		t.Errorf("payu = %+v", cfg.PayU)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
}

func TestDatabaseInMemory(t *testing.T) {
	if !(DatabaseConfig{URL: " memory "}).InMemory() {
		t.Error("memory url must select the in-memory store")
	}
	if (DatabaseConfig{URL: "postgres://localhost/okdriver"}).InMemory() {
		t.Error("postgres url must not select the in-memory store")
	}
}
