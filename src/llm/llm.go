package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	defaultBaseURL = "https://openrouter.ai/api/v1"
	initialDelay   = 1 * time.Second
	maxErrorBody   = 2048
)

type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Providers   []string
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int
	// Timeout bounds a single HTTP exchange. Zero leaves it to the endpoint.
	Timeout time.Duration
	// MaxAttempts bounds retries of transient failures. Values below 1 mean 1.
	MaxAttempts int
}

// OpenRouter API structures
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// TextContent builds a text part.
func TextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// PNGContent builds an inline image part from PNG bytes.
func PNGContent(data []byte) Content {
	return Content{
		Type:     "image_url",
		ImageURL: &ImageURL{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)},
	}
}

type ProviderPreferences struct {
	Order          []string `json:"order,omitempty"`
	AllowFallbacks *bool    `json:"allow_fallbacks,omitempty"`
}

type ChatRequest struct {
	Model       string               `json:"model"`
	Messages    []Message            `json:"messages"`
	Temperature float64              `json:"temperature"`
	TopP        float64              `json:"top_p,omitempty"`
	TopK        int                  `json:"top_k,omitempty"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
	Provider    *ProviderPreferences `json:"provider,omitempty"`
}

type ChatResponse struct {
	Choices []Choice  `json:"choices"`
	Usage   *Usage    `json:"usage,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type Choice struct {
	Message ResponseMessage `json:"message"`
}

type ResponseMessage struct {
	Content string `json:"content"`
}

// Usage carries token counts when the endpoint reports them.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type APIError struct {
	Message string      `json:"message"`
	Type    string      `json:"type"`
	Code    interface{} `json:"code"` // Can be string or number
}

// Completion is a successful model reply.
type Completion struct {
	Text  string
	Usage *Usage
}

type Client struct {
	cfg   Config
	http  *http.Client
	sleep func(context.Context, time.Duration) error
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("API key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		sleep: sleepContext,
	}, nil
}

// Model returns the configured model id.
func (c *Client) Model() string { return c.cfg.Model }

// getProviderPreferences returns provider preferences based on config
func (c *Client) getProviderPreferences() *ProviderPreferences {
	if len(c.cfg.Providers) == 0 {
		return nil
	}
	allowFallbacks := false
	return &ProviderPreferences{
		Order:          c.cfg.Providers,
		AllowFallbacks: &allowFallbacks,
	}
}

// Complete sends the ordered messages and returns the first choice. Transient
// failures are retried up to MaxAttempts with linear backoff.
func (c *Client) Complete(ctx context.Context, messages []Message) (Completion, error) {
	request := ChatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		TopK:        c.cfg.TopK,
		MaxTokens:   c.cfg.MaxTokens,
		Provider:    c.getProviderPreferences(),
	}

	var lastErr *ExternalServiceError
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(initialDelay) * (1.5 * float64(attempt)))
			log.Printf("llm: retrying after %v (attempt %d/%d): %v", delay, attempt+1, c.cfg.MaxAttempts, lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return Completion{}, classifyTransportError(err)
			}
		}

		response, err := c.makeAPIRequest(ctx, request)
		if err != nil {
			lastErr = err
			if !err.Transient() {
				break
			}
			continue
		}

		if len(response.Choices) == 0 {
			return Completion{}, &ExternalServiceError{Kind: KindMalformed, Message: "no choices in API response"}
		}
		return Completion{Text: response.Choices[0].Message.Content, Usage: response.Usage}, nil
	}

	return Completion{}, lastErr
}

func (c *Client) makeAPIRequest(ctx context.Context, request ChatRequest) (*ChatResponse, *ExternalServiceError) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, &ExternalServiceError{Kind: KindMalformed, Message: "failed to marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, &ExternalServiceError{Kind: KindNetwork, Message: "failed to create request", Err: err}
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	var response ChatResponse
	decodeErr := json.Unmarshal(body, &response)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(truncate(body, maxErrorBody)))
		if decodeErr == nil && response.Error != nil && response.Error.Message != "" {
			msg = response.Error.Message
		}
		return nil, statusError(resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, &ExternalServiceError{Kind: KindMalformed, StatusCode: resp.StatusCode, Message: "failed to decode response", Err: decodeErr}
	}
	// OpenRouter can report upstream failures inside a 200 body.
	if response.Error != nil {
		code := codeAsInt(response.Error.Code)
		if code == 0 {
			return nil, &ExternalServiceError{Kind: KindStatus, Message: response.Error.Message}
		}
		return nil, statusError(code, response.Error.Message)
	}

	return &response, nil
}

// Ping verifies the credential against the models listing.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/models", nil)
	if err != nil {
		return &ExternalServiceError{Kind: KindNetwork, Message: "failed to create request", Err: err}
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("HTTP-Referer", "https://github.com/screen-ask-llm/screen-ask-llm")
	req.Header.Set("X-Title", "Screen Ask Tool")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

func codeAsInt(code interface{}) int {
	switch v := code.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
