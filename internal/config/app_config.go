package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the demo HTTP entrypoint.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds the Manifest Store's Postgres DSN.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds the optional distributed-lock Redis address; a
// blank Addr means "no Redis, Postgres-only serialization" per
// SPEC_FULL.md's domain-stack notes.
type RedisConfig struct {
	Addr string `yaml:"addr"`
}

// LLMProviderConfig mirrors llm.ProviderConfig for YAML decoding.
type LLMProviderConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseUrl,omitempty"`
	Model   string `yaml:"model"`
}

// LLMConfig selects and configures the Structural Analyzer's backing
// provider.
type LLMConfig struct {
	DefaultProvider string            `yaml:"defaultProvider"`
	OpenAI          LLMProviderConfig `yaml:"openai"`
	Anthropic       LLMProviderConfig `yaml:"anthropic"`
	Google          LLMProviderConfig `yaml:"google"`
}

// RegionsConfig names the declarative region files this process loads
// at startup; each is decoded independently via Load.
type RegionsConfig struct {
	Paths []string `yaml:"paths"`
}

// AppConfig is the top-level process configuration for cmd/pipelinectl,
// decoded the way the teacher's own Config is: one YAML file, one
// struct, loaded once at startup.
type AppConfig struct {
	Server   ServerConfig  `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig   `yaml:"redis"`
	LLM      LLMConfig     `yaml:"llm"`
	Regions  RegionsConfig `yaml:"regions"`
}

// LoadAppConfig reads and decodes the process configuration at path.
func LoadAppConfig(path string) (*AppConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	var cfg AppConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}
	return &cfg, nil
}
