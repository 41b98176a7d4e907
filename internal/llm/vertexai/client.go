package vertexai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/owulveryck/nexushealth/internal/llm"
)

// Config holds the configuration for the VertexAI client
type Config struct {
	Project     string
	Location    string
	Model       string
	Temperature float32
}

// Client implements the llm.Client interface using VertexAI
type Client struct {
	config Config
	client *genai.Client
	logger *slog.Logger
}

// NewClient creates a new VertexAI client
func NewClient(ctx context.Context, config Config, logger *slog.Logger) (*Client, error) {
	if config.Project == "" {
		return nil, fmt.Errorf("project is required")
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  config.Project,
		Location: config.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	return &Client{
		config: config,
		client: genaiClient,
		logger: logger,
	}, nil
}

// Generate implements the llm.Client interface
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	c.logger.DebugContext(ctx, "Sending prompt to VertexAI",
		"model", c.config.Model,
		"project", c.config.Project,
		"prompt_length", len(req.Prompt),
	)

	response, err := c.query(ctx, req)
	if err != nil {
		c.logger.ErrorContext(ctx, "VertexAI query failed", "error", err)
		return "", fmt.Errorf("failed to query VertexAI: %w", err)
	}

	c.logger.DebugContext(ctx, "Received response from VertexAI",
		"response_length", len(response),
	)
	return response, nil
}

func (c *Client) generateConfig(req llm.Request) *genai.GenerateContentConfig {
	temperature := c.config.Temperature
	cfg := &genai.GenerateContentConfig{Temperature: &temperature}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

func (c *Client) query(ctx context.Context, req llm.Request) (string, error) {
	chat, err := c.client.Chats.Create(ctx, c.config.Model, c.generateConfig(req), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create chat: %w", err)
	}

	result, err := chat.SendMessage(ctx, genai.Part{Text: req.Prompt})
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	// Extract the text response from the result
	if len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		var out strings.Builder
		for _, part := range result.Candidates[0].Content.Parts {
			out.WriteString(part.Text)
		}
		if out.Len() > 0 {
			return out.String(), nil
		}
	}

	return "", llm.ErrEmptyResponse
}
