package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the configuration tree shared by every Nexus Health process.
// Each process reads only the sections it needs.
type Config struct {
	Service      ServiceConfig      `yaml:"service"`
	LLM          LLMConfig          `yaml:"llm"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	RAG          RAGConfig          `yaml:"rag"`
	Hospital     ProviderConfig     `yaml:"hospital"`
	Insurer      ProviderConfig     `yaml:"insurer"`
	Doctor       DoctorConfig       `yaml:"doctor"`
	Search       SearchConfig       `yaml:"search"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

type ServiceConfig struct {
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	// OTLPEndpoint is the OTLP/gRPC collector address. Empty disables export.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// LLMConfig selects the chat model used by providers and the orchestrator.
type LLMConfig struct {
	Provider    string        `yaml:"provider" validate:"oneof=ollama openai vertexai"`
	Model       string        `yaml:"model" validate:"required"`
	BaseURL     string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey      string        `yaml:"api_key"`
	Project     string        `yaml:"project" validate:"required_if=Provider vertexai"`
	Location    string        `yaml:"location"`
	Temperature float32       `yaml:"temperature" validate:"gte=0,lte=2"`
	Timeout     time.Duration `yaml:"timeout"`
}

// EmbeddingConfig selects the embedding model used to build and query indexes.
type EmbeddingConfig struct {
	Provider string `yaml:"provider" validate:"oneof=ollama openai hash"`
	Model    string `yaml:"model" validate:"required_unless=Provider hash"`
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	APIKey   string `yaml:"api_key"`
	// Dimensions sizes the offline hash embedder; indexes built with it
	// must be queried with the same value.
	Dimensions int `yaml:"dimensions" validate:"required_if=Provider hash,gte=0"`
}

type RAGConfig struct {
	DBDir      string `yaml:"db_dir" validate:"required"`
	SourceDir  string `yaml:"source_dir"`
	SourceGlob string `yaml:"source_glob"`

	ChunkSize    int `yaml:"chunk_size" validate:"gte=100"`
	ChunkOverlap int `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`

	TopK                int     `yaml:"top_k" validate:"gte=1"`
	SimilarityThreshold float32 `yaml:"similarity_threshold" validate:"gte=0,lte=1"`

	// ExposeDocuments registers each per-document tool as its own capability.
	ExposeDocuments bool `yaml:"expose_documents"`
}

// ProviderConfig describes one provider process.
type ProviderConfig struct {
	Addr string `yaml:"addr" validate:"required"`
	// HealthPort serves /health, /ready and /metrics. Empty disables it.
	HealthPort string `yaml:"health_port" validate:"omitempty,numeric"`
}

type DoctorConfig struct {
	DatasetURL string        `yaml:"dataset_url" validate:"required,url"`
	Timeout    time.Duration `yaml:"timeout"`
}

type SearchConfig struct {
	Backend    string        `yaml:"backend" validate:"oneof=duckduckgo searxng"`
	SearxURL   string        `yaml:"searx_url" validate:"required_if=Backend searxng,omitempty,url"`
	MaxResults int           `yaml:"max_results" validate:"gte=1,lte=20"`
	ScrapeTop  bool          `yaml:"scrape_top"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
}

type OrchestratorConfig struct {
	Endpoints     []string      `yaml:"endpoints" validate:"min=1,dive,required"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
	MaxIterations int           `yaml:"max_iterations" validate:"gte=1"`
	MaxToolCalls  int           `yaml:"max_tool_calls" validate:"gte=1"`
	Planner       string        `yaml:"planner" validate:"oneof=rules llm"`
	Classifier    string        `yaml:"classifier" validate:"oneof=keyword llm"`
	Synthesizer   string        `yaml:"synthesizer" validate:"oneof=template llm"`
	// HistoryPath is the SQLite file for run records. Empty keeps them in memory.
	HistoryPath string `yaml:"history_path"`
	HealthPort  string `yaml:"health_port" validate:"omitempty,numeric"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Version:     "1.0.0",
			Environment: "development",
			LogLevel:    "INFO",
		},
		LLM: LLMConfig{
			Provider:    "ollama",
			Model:       "llama3.1:8b-instruct-q4_K_M",
			BaseURL:     "http://localhost:11434/v1",
			Location:    "us-central1",
			Temperature: 0.3,
			Timeout:     120 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider: "ollama",
			Model:    "bge-m3",
			BaseURL:  "http://localhost:11434/api",
		},
		RAG: RAGConfig{
			DBDir:               "policy_db",
			SourceDir:           "policies",
			SourceGlob:          "**/*.{pdf,txt,md}",
			ChunkSize:           1200,
			ChunkOverlap:        200,
			TopK:                4,
			SimilarityThreshold: 0.3,
		},
		Hospital: ProviderConfig{Addr: ":8000", HealthPort: "8080"},
		Insurer:  ProviderConfig{Addr: ":8001", HealthPort: "8081"},
		Doctor: DoctorConfig{
			DatasetURL: "https://raw.githubusercontent.com/nicknochnack/ACPWalkthrough/main/doctors.json",
			Timeout:    15 * time.Second,
		},
		Search: SearchConfig{
			Backend:    "duckduckgo",
			MaxResults: 5,
			ScrapeTop:  true,
			UserAgent:  "Mozilla/5.0 (compatible; nexushealth/1.0)",
			Timeout:    20 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			Endpoints:     []string{"http://localhost:8001", "http://localhost:8000"},
			Timeout:       500 * time.Second,
			CallTimeout:   60 * time.Second,
			MaxIterations: 8,
			MaxToolCalls:  8,
			Planner:       "rules",
			Classifier:    "keyword",
			Synthesizer:   "template",
			HealthPort:    "8082",
		},
	}
}

// Load builds a Config from defaults, the optional YAML file at path and
// environment overrides, in that order, and validates the result.
// ${VAR} references in the file are expanded before parsing.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or "" when unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) {
	cfg.Service.LogLevel = getEnv("LOG_LEVEL", cfg.Service.LogLevel)
	cfg.Service.Environment = getEnv("ENVIRONMENT", cfg.Service.Environment)
	cfg.Service.Version = getEnv("SERVICE_VERSION", cfg.Service.Version)
	cfg.Service.OTLPEndpoint = getEnv("JAEGER_ENDPOINT", cfg.Service.OTLPEndpoint)

	cfg.LLM.Provider = getEnv("NEXUS_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.Model = getEnv("NEXUS_LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.BaseURL = getEnv("NEXUS_LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("OPENAI_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Project = getEnv("GCP_PROJECT", cfg.LLM.Project)
	cfg.LLM.Location = getEnv("GCP_LOCATION", cfg.LLM.Location)
	cfg.LLM.Timeout = getEnvAsDuration("NEXUS_LLM_TIMEOUT", cfg.LLM.Timeout)

	cfg.Embedding.Provider = getEnv("NEXUS_EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.Model = getEnv("NEXUS_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.BaseURL = getEnv("NEXUS_EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.Dimensions = getEnvAsInt("NEXUS_EMBEDDING_DIMENSIONS", cfg.Embedding.Dimensions)

	cfg.RAG.DBDir = getEnv("NEXUS_DB_DIR", cfg.RAG.DBDir)
	cfg.RAG.SourceDir = getEnv("NEXUS_SOURCE_DIR", cfg.RAG.SourceDir)
	cfg.RAG.TopK = getEnvAsInt("NEXUS_RAG_TOP_K", cfg.RAG.TopK)
	cfg.RAG.ExposeDocuments = getEnvAsBool("NEXUS_EXPOSE_DOCUMENTS", cfg.RAG.ExposeDocuments)

	cfg.Hospital.Addr = getEnv("HOSPITAL_ADDR", cfg.Hospital.Addr)
	cfg.Hospital.HealthPort = getEnv("HOSPITAL_HEALTH_PORT", cfg.Hospital.HealthPort)
	cfg.Insurer.Addr = getEnv("INSURER_ADDR", cfg.Insurer.Addr)
	cfg.Insurer.HealthPort = getEnv("INSURER_HEALTH_PORT", cfg.Insurer.HealthPort)

	cfg.Doctor.DatasetURL = getEnv("DOCTORS_DATA_URL", cfg.Doctor.DatasetURL)

	cfg.Search.Backend = getEnv("NEXUS_SEARCH_BACKEND", cfg.Search.Backend)
	cfg.Search.SearxURL = getEnv("SEARXNG_URL", cfg.Search.SearxURL)

	if endpoints := getEnv("NEXUS_ENDPOINTS", ""); endpoints != "" {
		cfg.Orchestrator.Endpoints = splitList(endpoints)
	}
	cfg.Orchestrator.Timeout = getEnvAsDuration("NEXUS_TIMEOUT", cfg.Orchestrator.Timeout)
	cfg.Orchestrator.MaxIterations = getEnvAsInt("NEXUS_MAX_ITERATIONS", cfg.Orchestrator.MaxIterations)
	cfg.Orchestrator.MaxToolCalls = getEnvAsInt("NEXUS_MAX_TOOL_CALLS", cfg.Orchestrator.MaxToolCalls)
	cfg.Orchestrator.HistoryPath = getEnv("NEXUS_HISTORY_PATH", cfg.Orchestrator.HistoryPath)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports every invalid field, named by its YAML path.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", yamlPath(fe.Namespace()), fe.Tag(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// yamlPath turns "Config.Orchestrator.MaxIterations" into "orchestrator.max_iterations".
func yamlPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer with a default fallback
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as boolean with a default fallback
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
