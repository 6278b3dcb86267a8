package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
// Logically stateless per call; safe for concurrent use, the HTTP client
// pool is shared.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger

	defaultTemperature *float64
	defaultTopP        *float64
}

// OpenAIOptions configures the client.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature *float64
	TopP        *float64
	Logger      *zap.Logger
}

// NewOpenAIClient creates the client. Credentials are validated on first use,
// not at construction.
func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIClient{
		apiKey:             opts.APIKey,
		baseURL:            baseURL,
		model:              opts.Model,
		httpClient:         &http.Client{Timeout: timeout},
		logger:             logger.Named("llm.openai"),
		defaultTemperature: opts.Temperature,
		defaultTopP:        opts.TopP,
	}
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string { return c.model }

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []chatContentPart
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// GetResponse sends one chat completion request. Screenshots ride along as
// image_url parts with detail low to keep token cost down.
func (c *OpenAIClient) GetResponse(ctx context.Context, systemPrompt, userPrompt string, opts ...RequestOption) (string, error) {
	if c.apiKey == "" {
		return "", &APIError{Provider: "openai", Message: "API key not configured"}
	}
	o := applyOptions(opts)

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	var userContent interface{} = userPrompt
	if len(o.images) > 0 {
		parts := []chatContentPart{{Type: "text", Text: userPrompt}}
		for _, img := range o.images {
			parts = append(parts, chatContentPart{
				Type:     "image_url",
				ImageURL: &chatImageURL{URL: img, Detail: "low"},
			})
		}
		userContent = parts
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		MaxTokens:   o.maxTokens,
		Temperature: firstFloat(o.temperature, c.defaultTemperature),
		TopP:        firstFloat(o.topP, c.defaultTopP),
	}

	start := time.Now()
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &APIError{Provider: "openai", Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &APIError{Provider: "openai", Message: "read response: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Provider: "openai", StatusCode: resp.StatusCode, Message: string(body)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &APIError{Provider: "openai", Message: "parse response: " + err.Error()}
	}
	if parsed.Error != nil {
		return "", &APIError{Provider: "openai", Message: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := StripFences(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	c.logger.Debug("chat completion",
		zap.String("model", c.model),
		zap.Int("images", len(o.images)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("response_len", len(text)))
	return text, nil
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
