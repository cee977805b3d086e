package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config holds the endpoints and credentials for the HTTP Reasoner.
type Config struct {
	// CloudURL is the OpenAI-compatible chat-completions base URL for
	// cloud-routed roles. Empty disables the client (mock mode).
	CloudURL string
	// CloudKey is the bearer credential for CloudURL.
	CloudKey string
	// SovereignURL is the local endpoint the pre-check role is pinned to.
	// Empty routes pre-check through the cloud endpoint.
	SovereignURL string
	// Registry maps roles to model names.
	Registry ModelRegistry
	// Timeout bounds one think call end to end.
	Timeout time.Duration
}

// Client is the HTTP-backed Reasoner. It speaks the OpenAI-compatible
// chat-completions wire shape and enforces JSON-object responses; callers
// never observe parse exceptions.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an HTTP Reasoner. Returns nil when no cloud endpoint
// is configured; callers fall back to the deterministic mock.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.CloudURL == "" {
		return nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Think issues one role-routed chat completion and decodes the reply into
// a JSON object. Transport failures return {error, status: FAILED} rather
// than an error value, so the Senate's fail-closed conversion happens on
// the content, not on Go control flow. Context cancellation is the one
// exception: it propagates as an error.
func (c *Client) Think(ctx context.Context, role Role, systemPrompt, userPrompt string, opts Options) (map[string]any, error) {
	model := opts.ExplicitModel
	if model == "" {
		model = c.cfg.Registry.ModelFor(role, opts.GovernanceMode)
	}

	temp := roleTemperature(role, opts.GovernanceMode)
	if opts.Temperature != nil {
		temp = *opts.Temperature
	}

	baseURL, key := c.endpointFor(role)

	reqBody, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    temp,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return failure(fmt.Errorf("reasoner: marshal request: %w", err)), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(baseURL, "/")+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return failure(fmt.Errorf("reasoner: create request: %w", err)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("reasoner: request failed", "role", role, "model", model, "error", err)
		return failure(fmt.Errorf("reasoner: send request: %w", err)), nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("reasoner: non-200 response", "role", role, "model", model, "status", resp.StatusCode)
		return failure(fmt.Errorf("reasoner: status %d: %s", resp.StatusCode, string(body))), nil
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return failure(fmt.Errorf("reasoner: decode response: %w", err)), nil
	}
	if decoded.Error != nil {
		return failure(fmt.Errorf("reasoner: upstream error: %s", decoded.Error.Message)), nil
	}
	if len(decoded.Choices) == 0 {
		return failure(fmt.Errorf("reasoner: empty choices")), nil
	}

	return ParseObject(decoded.Choices[0].Message.Content), nil
}

// endpointFor resolves the base URL and credential for a role. The
// pre-check role is pinned to the sovereign endpoint when configured.
func (c *Client) endpointFor(role Role) (string, string) {
	if sovereign(role) && c.cfg.SovereignURL != "" {
		return c.cfg.SovereignURL, ""
	}
	return c.cfg.CloudURL, c.cfg.CloudKey
}

// ParseObject decodes model output into a JSON object. Non-JSON content is
// wrapped as {raw_output, status: UNKNOWN_FORMAT}; JSON that is not an
// object (arrays, scalars) gets the same treatment.
func ParseObject(content string) map[string]any {
	trimmed := strings.TrimSpace(content)

	// Models sometimes fence JSON despite json_object mode.
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		return obj
	}
	return map[string]any{
		"raw_output": content,
		"status":     StatusUnknownFormat,
	}
}

// failure wraps a transport or decode error as a FAILED result object.
func failure(err error) map[string]any {
	return map[string]any{
		"error":  err.Error(),
		"status": StatusFailed,
	}
}
