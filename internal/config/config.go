package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	DBPath      string `envconfig:"DB_PATH" default:"blogsmith.db"`

	// Stage registry (optional YAML override of the built-in pipeline)
	RegistryPath string `envconfig:"REGISTRY_PATH"`

	// Runner
	RunnerWorkers   int `envconfig:"RUNNER_WORKERS" default:"4"`
	RunnerQueueSize int `envconfig:"RUNNER_QUEUE_SIZE" default:"256"`

	// LLM providers (Claude for analysis/creation, OpenAI for research)
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `envconfig:"ANTHROPIC_MODEL" default:"claude-sonnet-4-5"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel     string `envconfig:"OPENAI_MODEL" default:"gpt-4-turbo"`

	// Site generation
	SitesDir        string `envconfig:"SITES_DIR" default:"./sites"`
	VercelToken     string `envconfig:"VERCEL_TOKEN"`
	NetlifyToken    string `envconfig:"NETLIFY_TOKEN"`
	DefaultDeployer string `envconfig:"DEFAULT_DEPLOYER" default:"vercel"`

	// Slack notifications (optional; pipeline runs without Slack)
	SlackBotToken string `envconfig:"SLACK_BOT_TOKEN"`
	SlackChannel  string `envconfig:"SLACK_CHANNEL"`

	// Management API
	MgmtListenAddr  string        `envconfig:"MGMT_LISTEN_ADDR" default:":8090"`
	MgmtAuthMode    string        `envconfig:"MGMT_AUTH_MODE" default:"api-key"`
	MgmtAPIKey      string        `envconfig:"MGMT_API_KEY"`
	MgmtJWTSecret   string        `envconfig:"MGMT_JWT_SECRET"`
	MgmtCORSOrigins string        `envconfig:"MGMT_CORS_ORIGINS"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// AnthropicEnabled returns true if the Anthropic API key is configured.
func (c *Config) AnthropicEnabled() bool {
	return c.AnthropicAPIKey != ""
}

// OpenAIEnabled returns true if the OpenAI API key is configured.
func (c *Config) OpenAIEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// SlackEnabled returns true if Slack notifications are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

// Validate checks cross-field constraints that envconfig cannot express.
func (c *Config) Validate() error {
	switch c.MgmtAuthMode {
	case "api-key":
		if c.MgmtAPIKey == "" && c.Environment != "development" {
			return fmt.Errorf("MGMT_API_KEY is required when MGMT_AUTH_MODE=api-key outside development")
		}
	case "jwt":
		if c.MgmtJWTSecret == "" {
			return fmt.Errorf("MGMT_JWT_SECRET is required when MGMT_AUTH_MODE=jwt")
		}
	case "none":
	default:
		return fmt.Errorf("unknown MGMT_AUTH_MODE %q (want api-key, jwt, or none)", c.MgmtAuthMode)
	}

	switch c.DefaultDeployer {
	case "vercel", "netlify", "local":
	default:
		return fmt.Errorf("unknown DEFAULT_DEPLOYER %q (want vercel, netlify, or local)", c.DefaultDeployer)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
