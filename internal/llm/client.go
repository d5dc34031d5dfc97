package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

const serviceName = "together"

// ErrNotConfigured не задан TOGETHER_API_KEY
var ErrNotConfigured = errors.New("llm api key not configured")

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Message одно сообщение диалога в формате chat completions
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest параметры запроса без модели, модель берется из конфигурации
type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	Stop        []string
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	Stop        []string  `json:"stop,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client клиент Together.ai chat completions
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger

	// newBackOff политика повторов, в тестах заменяется на мгновенную
	newBackOff func() backoff.BackOff
}

func New(cfg Config, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.Named("llm"),
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 15 * time.Second
	bo.MaxElapsedTime = time.Minute
	return bo
}

func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete возвращает текст первого варианта ответа.
// 429, 5xx и сетевые ошибки повторяются с экспоненциальной задержкой, остальные 4xx сразу возвращаются.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	var (
		reply   string
		attempt int
	)
	operation := func() error {
		attempt++
		text, err := c.do(ctx, body)
		if err != nil {
			var upstream *domain.ExternalServiceError
			if errors.As(err, &upstream) && !retryable(upstream.StatusCode) {
				return backoff.Permanent(err)
			}
			c.log.Warnw("LLM request failed, retrying", "attempt", attempt, "error", err)
			return err
		}
		reply = text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		c.log.Errorw("LLM request failed", "attempts", attempt, "error", err)
		var upstream *domain.ExternalServiceError
		if errors.As(err, &upstream) {
			return "", upstream
		}
		return "", domain.NewExternalServiceError(serviceName, 0, "request failed", err)
	}
	return reply, nil
}

func (c *Client) do(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", domain.NewExternalServiceError(serviceName, resp.StatusCode, http.StatusText(resp.StatusCode), errors.New(truncate(string(payload), 200)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", domain.NewExternalServiceError(serviceName, resp.StatusCode, "malformed response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500 || status == 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
