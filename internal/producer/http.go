package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"reviewbot/internal/review"
)

const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 2 * time.Minute

	// maxErrorBody bounds how much of an error response is kept in APIError.
	maxErrorBody = 512
)

// APIError is a non-2xx answer from the completions endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("completions endpoint returned %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether repeating the request may succeed.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPProducer calls an OpenAI-compatible /chat/completions endpoint.
type HTTPProducer struct {
	endpoint    string
	model       string
	temperature float64
	system      string
	client      *http.Client
	logger      *slog.Logger
}

type httpConfig struct {
	client      *http.Client
	model       string
	temperature float64
	system      string
	timeout     time.Duration
	logger      *slog.Logger
}

type HTTPOption func(*httpConfig)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(cfg *httpConfig) { cfg.client = c }
}

func WithModel(m string) HTTPOption {
	return func(cfg *httpConfig) { cfg.model = m }
}

func WithTemperature(t float64) HTTPOption {
	return func(cfg *httpConfig) { cfg.temperature = t }
}

// WithSystemPrompt sets an optional system message sent ahead of every prompt.
func WithSystemPrompt(s string) HTTPOption {
	return func(cfg *httpConfig) { cfg.system = s }
}

func WithTimeout(d time.Duration) HTTPOption {
	return func(cfg *httpConfig) { cfg.timeout = d }
}

func WithLogger(l *slog.Logger) HTTPOption {
	return func(cfg *httpConfig) { cfg.logger = l }
}

// NewHTTP builds a producer against baseURL (e.g. https://api.openai.com/v1).
// apiKey, when set, is sent as a bearer token.
func NewHTTP(baseURL, apiKey string, opts ...HTTPOption) (*HTTPProducer, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("producer: base URL is required")
	}

	cfg := &httpConfig{model: DefaultModel, timeout: DefaultTimeout}
	for _, apply := range opts {
		if apply != nil {
			apply(cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	base := http.DefaultTransport
	if cfg.client != nil && cfg.client.Transport != nil {
		base = cfg.client.Transport
	}
	transport := base
	if apiKey != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey, TokenType: "Bearer"})
		transport = &oauth2.Transport{Source: ts, Base: base}
	}

	return &HTTPProducer{
		endpoint:    baseURL + "/chat/completions",
		model:       cfg.model,
		temperature: cfg.temperature,
		system:      cfg.system,
		client:      &http.Client{Transport: transport, Timeout: cfg.timeout},
		logger:      cfg.logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *HTTPProducer) Run(ctx context.Context, req review.ProducerRequest) (string, error) {
	msgs := make([]chatMessage, 0, 2)
	if p.system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: p.system})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: BuildPrompt(req)})

	body, err := json.Marshal(chatRequest{Model: p.model, Messages: msgs, Temperature: p.temperature})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	p.logger.DebugContext(ctx, "completion response",
		"item", req.Identifier, "status", resp.StatusCode, "duration", time.Since(start).Truncate(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var parsed chatResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		if msg == "" {
			msg = resp.Status
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("completion response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
