package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"observatory/internal/logging"
)

// ErrRetriesExhausted wraps the last transient failure once the retry budget
// is spent. Callers record a failed cycle and never treat it as fatal.
var ErrRetriesExhausted = errors.New("reasoning: retry budget exhausted")

// OpenRouterConfig configures the OpenRouter client.
type OpenRouterConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration // first retry sleeps this long, doubling each attempt
	MinInterval time.Duration // minimum spacing between requests
	SiteURL     string        // HTTP-Referer header for rankings
	SiteName    string        // X-Title header for rankings
}

// DefaultOpenRouterConfig returns sensible defaults.
func DefaultOpenRouterConfig(apiKey string) OpenRouterConfig {
	return OpenRouterConfig{
		APIKey:      apiKey,
		BaseURL:     "https://openrouter.ai/api/v1",
		Model:       "moonshotai/kimi-k2.5",
		Timeout:     120 * time.Second,
		MaxRetries:  3,
		BackoffBase: time.Second,
		MinInterval: 100 * time.Millisecond,
		SiteName:    "Moltbook Observatory",
	}
}

// OpenRouterClient implements Client for the OpenRouter API.
type OpenRouterClient struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	maxRetries  int
	backoffBase time.Duration
	minInterval time.Duration
	mu          sync.Mutex
	lastRequest time.Time
	siteURL     string
	siteName    string
}

// NewOpenRouterClient creates a client with default settings.
func NewOpenRouterClient(apiKey string) *OpenRouterClient {
	return NewOpenRouterClientWithConfig(DefaultOpenRouterConfig(apiKey))
}

// NewOpenRouterClientWithConfig creates a client with custom config.
func NewOpenRouterClientWithConfig(config OpenRouterConfig) *OpenRouterClient {
	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &OpenRouterClient{
		apiKey:      config.APIKey,
		baseURL:     config.BaseURL,
		model:       config.Model,
		maxRetries:  config.MaxRetries,
		backoffBase: config.BackoffBase,
		minInterval: config.MinInterval,
		siteURL:     config.SiteURL,
		siteName:    config.SiteName,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterRequest struct {
	Model       string              `json:"model"`
	Messages    []openRouterMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature"`
}

type openRouterResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a prompt and returns the completion.
func (c *OpenRouterClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message. Transient
// failures (network errors, timeouts, 429) are retried with exponential
// backoff until the budget is spent; non-retryable API errors return
// immediately.
func (c *OpenRouterClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.APIDebug("[OpenRouter] CompleteWithSystem: model=%s system_len=%d user_len=%d",
		c.model, len(systemPrompt), len(userPrompt))

	if c.apiKey == "" {
		logging.APIError("[OpenRouter] CompleteWithSystem: API key not configured")
		return "", fmt.Errorf("API key not configured")
	}

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < c.minInterval {
		time.Sleep(c.minInterval - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	messages := []openRouterMessage{}
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, openRouterMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, openRouterMessage{Role: "user", Content: userPrompt})

	reqBody := openRouterRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   4096,
		Temperature: 0.1,
	}

	var lastErr error

	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(c.backoffBase * time.Duration(1<<uint(i-1))):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrRetriesExhausted, ctx.Err())
			}
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		// OpenRouter-specific headers
		req.Header.Set("HTTP-Referer", c.siteURL)
		req.Header.Set("X-Title", c.siteName)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var orResp openRouterResponse
		if err := json.Unmarshal(body, &orResp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}

		if orResp.Error != nil {
			return "", fmt.Errorf("API error: %s", orResp.Error.Message)
		}

		if len(orResp.Choices) == 0 {
			logging.APIError("[OpenRouter] CompleteWithSystem: no completion returned")
			return "", fmt.Errorf("no completion returned")
		}

		response := strings.TrimSpace(orResp.Choices[0].Message.Content)
		logging.API("[OpenRouter] CompleteWithSystem: completed in %v response_len=%d",
			time.Since(startTime), len(response))
		return response, nil
	}

	logging.APIError("[OpenRouter] CompleteWithSystem: retry budget exhausted after %v: %v",
		time.Since(startTime), lastErr)
	return "", fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

// SetModel changes the model used for completions.
func (c *OpenRouterClient) SetModel(model string) {
	c.model = model
}

// GetModel returns the current model.
func (c *OpenRouterClient) GetModel() string {
	return c.model
}
