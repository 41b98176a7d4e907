// Package backend builds the llm.Client selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/owulveryck/nexushealth/internal/config"
	"github.com/owulveryck/nexushealth/internal/llm"
	"github.com/owulveryck/nexushealth/internal/llm/openai"
	"github.com/owulveryck/nexushealth/internal/llm/vertexai"
)

// New returns a client for cfg.Provider. "ollama" and "openai" share the
// OpenAI-compatible client; "vertexai" uses Gemini through genai.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (llm.Client, error) {
	switch cfg.Provider {
	case "ollama", "openai", "":
		return openai.NewClient(openai.Config{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger)
	case "vertexai":
		return vertexai.NewClient(ctx, vertexai.Config{
			Project:     cfg.Project,
			Location:    cfg.Location,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
