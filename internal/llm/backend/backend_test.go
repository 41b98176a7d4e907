package backend

import (
	"context"
	"testing"

	"github.com/owulveryck/nexushealth/internal/config"
	"github.com/owulveryck/nexushealth/internal/llm/openai"
)

func TestNew_Ollama(t *testing.T) {
	client, err := New(context.Background(), config.Default().LLM, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := client.(*openai.Client); !ok {
		t.Errorf("Expected *openai.Client, got %T", client)
	}
}

func TestNew_Unknown(t *testing.T) {
	cfg := config.Default().LLM
	cfg.Provider = "carrier-pigeon"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("Expected error for unknown provider")
	}
}

func TestNew_VertexRequiresProject(t *testing.T) {
	cfg := config.Default().LLM
	cfg.Provider = "vertexai"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("Expected error without project")
	}
}
