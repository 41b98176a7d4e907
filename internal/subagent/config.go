package subagent

import "log/slog"

// Config holds the configuration for a provider process
type Config struct {
	// ServiceName identifies the process in logs, traces and metrics, e.g. "hospital"
	ServiceName string

	// Description is a brief description of what the process hosts
	Description string

	// Version is the service version (optional, defaults to "1.0.0")
	Version string

	// Addr is the gRPC listen address, e.g. ":8000"
	Addr string

	// HealthPort is the port for /health, /ready and /metrics (optional, empty disables it)
	HealthPort string

	// OTLPEndpoint is the trace collector address (optional, empty disables export)
	OTLPEndpoint string

	// Environment is reported as the deployment environment (optional, defaults to "development")
	Environment string

	// LogLevel is the minimum level for the process logger
	LogLevel slog.Level
}

// WithDefaults returns a new Config with default values applied for optional fields
func (c *Config) WithDefaults() *Config {
	config := *c

	if config.Version == "" {
		config.Version = "1.0.0"
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	return &config
}

// Validate checks if the required configuration fields are set
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrMissingServiceName
	}

	if c.Addr == "" {
		return ErrMissingAddr
	}

	return nil
}
