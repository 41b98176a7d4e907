package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nexus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Hospital.Addr)
	assert.Equal(t, ":8001", cfg.Insurer.Addr)
	assert.Equal(t, 500*time.Second, cfg.Orchestrator.Timeout)
	assert.Equal(t, 8, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, 8, cfg.Orchestrator.MaxToolCalls)
	assert.Equal(t, "llama3.1:8b-instruct-q4_K_M", cfg.LLM.Model)
	assert.Equal(t, 1200, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
}

func TestLoad_FileWithExpansion(t *testing.T) {
	t.Setenv("TEST_INSURER_HOST", "insurer.internal")
	path := writeFile(t, `
orchestrator:
  endpoints:
    - http://${TEST_INSURER_HOST}:8001
  timeout: 90s
  max_iterations: 3
rag:
  db_dir: /var/lib/nexus/policies
  expose_documents: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://insurer.internal:8001"}, cfg.Orchestrator.Endpoints)
	assert.Equal(t, 90*time.Second, cfg.Orchestrator.Timeout)
	assert.Equal(t, 3, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, 8, cfg.Orchestrator.MaxToolCalls)
	assert.Equal(t, "/var/lib/nexus/policies", cfg.RAG.DBDir)
	assert.True(t, cfg.RAG.ExposeDocuments)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "orchestrator:\n  max_tool_calls: 4\n")
	t.Setenv("NEXUS_MAX_TOOL_CALLS", "2")
	t.Setenv("NEXUS_ENDPOINTS", " localhost:9000 , ,localhost:9001")
	t.Setenv("NEXUS_TIMEOUT", "not-a-duration")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Orchestrator.MaxToolCalls)
	assert.Equal(t, []string{"localhost:9000", "localhost:9001"}, cfg.Orchestrator.Endpoints)
	assert.Equal(t, 500*time.Second, cfg.Orchestrator.Timeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeFile(t, "orchestrator: [unclosed"))
	assert.ErrorContains(t, err, "parsing config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no endpoints", func(c *Config) { c.Orchestrator.Endpoints = nil }, "orchestrator.endpoints"},
		{"zero iterations", func(c *Config) { c.Orchestrator.MaxIterations = 0 }, "orchestrator.max_iterations"},
		{"unknown planner", func(c *Config) { c.Orchestrator.Planner = "magic" }, "orchestrator.planner"},
		{"overlap too large", func(c *Config) { c.RAG.ChunkOverlap = 2000 }, "rag.chunk_overlap"},
		{"vertex without project", func(c *Config) { c.LLM.Provider = "vertexai" }, "llm.project"},
		{"searx without url", func(c *Config) { c.Search.Backend = "searxng" }, "search.searx_url"},
		{"empty db dir", func(c *Config) { c.RAG.DBDir = "" }, "rag.db_dir"},
		{"bad dataset url", func(c *Config) { c.Doctor.DatasetURL = "not a url" }, "doctor.dataset_url"},
		{"hash without dimensions", func(c *Config) { c.Embedding.Provider = "hash" }, "embedding.dimensions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, Default().Validate())

	hashed := Default()
	hashed.Embedding = EmbeddingConfig{Provider: "hash", Dimensions: 256}
	assert.NoError(t, hashed.Validate())
}

func TestYAMLPath(t *testing.T) {
	assert.Equal(t, "rag.db_dir", yamlPath("Config.RAG.DBDir"))
	assert.Equal(t, "service.otlp_endpoint", yamlPath("Config.Service.OTLPEndpoint"))
	assert.Equal(t, "llm.api_key", yamlPath("Config.LLM.APIKey"))
}
