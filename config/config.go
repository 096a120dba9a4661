package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Conceptual-Machines/magda-timeline-go/engine"
)

// Config contains configuration for the arrangement tools and agents
type Config struct {
	OpenAIAPIKey string `yaml:"-"` // OpenAI API key for LLM provider
	GeminiAPIKey string `yaml:"-"` // Google Gemini API key (optional)
	// MCPServerURL makes arrangement-mcp serve over SSE at this url instead of stdio
	MCPServerURL string `yaml:"mcp_server_url,omitempty"`

	// Model selects the LLM used by the arrangement agent
	Model string `yaml:"model"`
	// SentryDSN enables Sentry tracing when set
	SentryDSN string `yaml:"-"`

	Engine engine.Settings `yaml:"engine"`
}

const defaultModel = "gpt-5.1"

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Model:  defaultModel,
		Engine: engine.DefaultSettings(),
	}
}

// ReadConfig loads a YAML config file from fsys. Keys missing from the
// file keep their defaults; secrets always come from the environment.
func ReadConfig(fsys fs.FS, name string) (*Config, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("could not open: %w", err)
	}
	defer f.Close()

	cfg := Default()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("could not decode: %w", err)
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine settings: %w", err)
	}
	cfg.LoadEnv()
	return cfg, nil
}

// Load reads the config file at path, or returns the defaults with the
// environment applied when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.LoadEnv()
		return cfg, nil
	}
	return ReadConfig(os.DirFS(filepath.Dir(path)), filepath.Base(path))
}

// LoadEnv fills the secrets from the environment
func (c *Config) LoadEnv() {
	c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	c.SentryDSN = os.Getenv("SENTRY_DSN")
	if url := os.Getenv("MCP_SERVER_URL"); url != "" {
		c.MCPServerURL = url
	}
	if model := os.Getenv("ARRANGEMENT_MODEL"); model != "" {
		c.Model = model
	}
}
