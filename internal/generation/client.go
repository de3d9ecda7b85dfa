package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const maxResponseBytes = 4 << 20

// ClientConfig holds configuration for the generation client.
type ClientConfig struct {
	Enabled     bool
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	HourlyLimit int
	DailyLimit  int
}

// DefaultClientConfig returns default configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Enabled:     true,
		BaseURL:     "https://api.dify.ai/v1",
		Timeout:     30 * time.Second,
		HourlyLimit: 100,
		DailyLimit:  1000,
	}
}

// Client calls POST {BaseURL}/chat-messages in blocking mode. It never retries.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	hourly *rate.Limiter
	daily  *rate.Limiter
	logger *slog.Logger
}

var _ Generator = (*Client)(nil)

// NewClient creates a generation client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultClientConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.HourlyLimit <= 0 {
		cfg.HourlyLimit = def.HourlyLimit
	}
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = def.DailyLimit
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:    cfg,
		http:   &http.Client{},
		hourly: rate.NewLimiter(rate.Every(time.Hour/time.Duration(cfg.HourlyLimit)), cfg.HourlyLimit),
		daily:  rate.NewLimiter(rate.Every(24*time.Hour/time.Duration(cfg.DailyLimit)), cfg.DailyLimit),
		logger: logger,
	}
}

// Generate sends one blocking request and returns the completion.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	if !c.cfg.Enabled {
		return nil, fmt.Errorf("%w: generation disabled", ErrUpstream)
	}
	if err := c.reserve(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	body, err := json.Marshal(chatRequest{
		Inputs:         inputs,
		Query:          req.Prompt,
		ResponseMode:   "blocking",
		User:           req.User,
		ConversationID: req.ConversationID,
		Files:          req.Files,
	})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat-messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close generation response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if err := statusError(resp.StatusCode, raw); err != nil {
		c.logger.Warn("Generation backend returned error", "status", resp.StatusCode, "kind", KindOf(err), "user", req.User)
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(parsed.Answer) == "" {
		return nil, fmt.Errorf("%w: empty answer", ErrMalformedResponse)
	}

	usage := parsed.Metadata.Usage
	c.logger.Info("Generation completed",
		"user", req.User,
		"message_id", parsed.MessageID,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"total_tokens", usage.TotalTokens,
		"latency", usage.Latency,
		"elapsed", time.Since(start),
	)

	return &Result{
		Text:           parsed.Answer,
		Raw:            string(raw),
		TokensUsed:     usage.TotalTokens,
		MessageID:      parsed.MessageID,
		ConversationID: parsed.ConversationID,
		Usage:          usage,
	}, nil
}

// reserve takes one token from both budgets or neither.
func (c *Client) reserve() error {
	now := time.Now()
	h := c.hourly.ReserveN(now, 1)
	if !h.OK() || h.DelayFrom(now) > 0 {
		h.CancelAt(now)
		return fmt.Errorf("%w: hourly limit of %d reached", ErrRateLimited, c.cfg.HourlyLimit)
	}
	d := c.daily.ReserveN(now, 1)
	if !d.OK() || d.DelayFrom(now) > 0 {
		d.CancelAt(now)
		h.CancelAt(now)
		return fmt.Errorf("%w: daily limit of %d reached", ErrRateLimited, c.cfg.DailyLimit)
	}
	return nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}

func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	msg := http.StatusText(status)
	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		msg = e.Code + ": " + e.Message
	}

	switch status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d: %s", ErrTimeout, status, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, status, msg)
	}
}
