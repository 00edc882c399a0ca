// Package agent provides the client for the external agent invocation service.
// The service runs the agent's reasoning and tools; Pulse treats one invocation
// as a single opaque request/response that may take minutes.
package agent

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

	"github.com/rs/zerolog"

	"github.com/Enntity/pulse/internal/logging"
)

// Client errors.
var (
	ErrEmptyPrompt = errors.New("prompt is required")
	ErrNoEndpoint  = errors.New("agent endpoint is not configured")
)

// InvokeRequest describes one agent invocation.
type InvokeRequest struct {
	// EntityID identifies the persona the agent acts as.
	EntityID string `json:"entity_id"`

	// Model optionally overrides the service's default model.
	Model string `json:"model,omitempty"`

	// Prompt is the wake prompt.
	Prompt string `json:"prompt"`

	// History seeds the invocation's conversation history.
	History []Message `json:"history,omitempty"`

	// Background marks the invocation as non-interactive.
	Background bool `json:"background"`
}

// Message is one conversation history entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InvokeResult is the agent service's response.
type InvokeResult struct {
	// Text is the agent's final textual output.
	Text string `json:"text"`

	// Usage holds raw per-step usage records. Field names vary by upstream
	// provider; use SumUsageTokens to total them.
	Usage []json.RawMessage `json:"usage,omitempty"`

	// ToolCalls is the number of tool invocations the agent made.
	ToolCalls int `json:"tool_calls"`
}

// Invoker runs agent invocations.
type Invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error)
}

// Config contains agent client configuration.
type Config struct {
	// Endpoint is the base URL of the agent invocation service.
	Endpoint string

	// Timeout bounds a single invocation. Invocations can run for
	// minutes, so the default is generous (10m).
	Timeout time.Duration
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Minute,
	}
}

// Client is an HTTP Invoker.
type Client struct {
	endpoint string
	http     *http.Client
	logger   zerolog.Logger
}

// NewClient creates a new agent service client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, ErrNoEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}

	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
		logger:   logging.Component("agent"),
	}, nil
}

// Invoke runs one agent invocation and blocks until it finishes.
func (c *Client) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invoke request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/invoke", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build invoke request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agent invocation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("agent invocation returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result InvokeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode invoke response: %w", err)
	}

	c.logger.Debug().
		Str("entity_id", req.EntityID).
		Dur("duration", time.Since(start)).
		Int("tool_calls", result.ToolCalls).
		Msg("agent invocation finished")

	return &result, nil
}

var _ Invoker = (*Client)(nil)
