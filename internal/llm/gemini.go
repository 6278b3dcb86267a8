package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiClient adapts the Google GenAI SDK to the Client surface. It exists
// for deployments whose LLM config selects `api: gemini`.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger

	defaultTemperature *float64
	defaultTopP        *float64
}

// GeminiOptions configures the client.
type GeminiOptions struct {
	APIKey      string
	Model       string
	Temperature *float64
	TopP        *float64
	Logger      *zap.Logger
}

// NewGeminiClient creates the client.
func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, &APIError{Provider: "gemini", Message: "API key not configured"}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: opts.APIKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiClient{
		client:             client,
		model:              model,
		logger:             logger.Named("llm.gemini"),
		defaultTemperature: opts.Temperature,
		defaultTopP:        opts.TopP,
	}, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string { return c.model }

// GetResponse sends one generation request with optional inline screenshots.
func (c *GeminiClient) GetResponse(ctx context.Context, systemPrompt, userPrompt string, opts ...RequestOption) (string, error) {
	o := applyOptions(opts)

	parts := []*genai.Part{genai.NewPartFromText(userPrompt)}
	for _, img := range o.images {
		data, mime, err := decodeDataURL(img)
		if err != nil {
			c.logger.Warn("skipping undecodable image", zap.Error(err))
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(data, mime))
	}

	cfg := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if t := firstFloat(o.temperature, c.defaultTemperature); t != nil {
		cfg.Temperature = genai.Ptr(float32(*t))
	}
	if p := firstFloat(o.topP, c.defaultTopP); p != nil {
		cfg.TopP = genai.Ptr(float32(*p))
	}
	if o.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(o.maxTokens)
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", &APIError{Provider: "gemini", Message: err.Error()}
	}

	text := StripFences(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// decodeDataURL splits a data:image/png;base64,... URL into raw bytes and a
// MIME type.
func decodeDataURL(url string) ([]byte, string, error) {
	if !strings.HasPrefix(url, "data:") {
		return nil, "", fmt.Errorf("not a data URL")
	}
	rest := strings.TrimPrefix(url, "data:")
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return nil, "", fmt.Errorf("malformed data URL")
	}
	mime := strings.TrimSuffix(meta, ";base64")
	if mime == "" {
		mime = "image/png"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data URL: %w", err)
	}
	return data, mime, nil
}
