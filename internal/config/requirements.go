package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvRequirementsEnabled     = "LABELHUB_REQUIREMENTS_ENABLED"
	EnvRequirementsBatchSize   = "LABELHUB_REQUIREMENTS_BATCH_SIZE"
	EnvRequirementsConcurrency = "LABELHUB_REQUIREMENTS_CONCURRENCY"
	EnvAgentBackend            = "LABELHUB_AGENT_BACKEND"
	EnvAgentModel              = "LABELHUB_AGENT_MODEL"
	EnvAgentAPIKey             = "LABELHUB_AGENT_API_KEY"
	EnvAgentProject            = "LABELHUB_AGENT_PROJECT"
	EnvAgentLocation           = "LABELHUB_AGENT_LOCATION"
	EnvAgentTimeout            = "LABELHUB_AGENT_TIMEOUT"
)

// Agent backends.
const (
	AgentBackendGemini = "gemini"
	AgentBackendVertex = "vertex"
)

// AgentConfig selects the model that scores dataset rows.
type AgentConfig struct {
	Backend  string `toml:"backend"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	Project  string `toml:"project"`
	Location string `toml:"location"`
	Timeout  string `toml:"timeout"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *AgentConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// RequirementsConfig controls generation of per-row requirement vectors. When
// disabled every row keeps the uniform vector it is created with.
type RequirementsConfig struct {
	Enabled     bool        `toml:"enabled"`
	BatchSize   int         `toml:"batch_size"`
	Concurrency int         `toml:"concurrency"`
	Agent       AgentConfig `toml:"agent"`
}

// Finalize applies defaults, environment variable overrides, and validation.
// The agent is only validated when generation is enabled.
func (c *RequirementsConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *RequirementsConfig) Merge(overlay *RequirementsConfig) {
	if overlay.Enabled {
		c.Enabled = true
	}
	if overlay.BatchSize > 0 {
		c.BatchSize = overlay.BatchSize
	}
	if overlay.Concurrency > 0 {
		c.Concurrency = overlay.Concurrency
	}
	if overlay.Agent.Backend != "" {
		c.Agent.Backend = overlay.Agent.Backend
	}
	if overlay.Agent.Model != "" {
		c.Agent.Model = overlay.Agent.Model
	}
	if overlay.Agent.APIKey != "" {
		c.Agent.APIKey = overlay.Agent.APIKey
	}
	if overlay.Agent.Project != "" {
		c.Agent.Project = overlay.Agent.Project
	}
	if overlay.Agent.Location != "" {
		c.Agent.Location = overlay.Agent.Location
	}
	if overlay.Agent.Timeout != "" {
		c.Agent.Timeout = overlay.Agent.Timeout
	}
}

func (c *RequirementsConfig) loadDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.Agent.Backend == "" {
		c.Agent.Backend = AgentBackendGemini
	}
	if c.Agent.Model == "" {
		c.Agent.Model = "gemini-2.5-flash"
	}
	if c.Agent.Timeout == "" {
		c.Agent.Timeout = "60s"
	}
}

func (c *RequirementsConfig) loadEnv() {
	if v := os.Getenv(EnvRequirementsEnabled); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Enabled = b
		}
	}
	if v := os.Getenv(EnvRequirementsBatchSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchSize = n
		}
	}
	if v := os.Getenv(EnvRequirementsConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}

	set := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	set(EnvAgentBackend, &c.Agent.Backend)
	set(EnvAgentModel, &c.Agent.Model)
	set(EnvAgentAPIKey, &c.Agent.APIKey)
	set(EnvAgentProject, &c.Agent.Project)
	set(EnvAgentLocation, &c.Agent.Location)
	set(EnvAgentTimeout, &c.Agent.Timeout)
}

func (c *RequirementsConfig) validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive: %d", c.BatchSize)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive: %d", c.Concurrency)
	}
	if !c.Enabled {
		return nil
	}

	if d, err := time.ParseDuration(c.Agent.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid agent timeout: %q", c.Agent.Timeout)
	}
	switch c.Agent.Backend {
	case AgentBackendGemini:
		if c.Agent.APIKey == "" {
			return fmt.Errorf("agent api_key required for the %s backend", c.Agent.Backend)
		}
	case AgentBackendVertex:
		if c.Agent.Project == "" || c.Agent.Location == "" {
			return fmt.Errorf("agent project and location required for the %s backend", c.Agent.Backend)
		}
	default:
		return fmt.Errorf("unknown agent backend: %q", c.Agent.Backend)
	}
	return nil
}
