// Package config loads the service configuration from a YAML file with
// ${VAR} environment expansion, applies defaults section by section, and
// validates the result before anything connects to the outside world.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/anuj67851/genai-workflow-maker/pkg/model"
	"github.com/anuj67851/genai-workflow-maker/pkg/vector"
)

// Config is the root of the service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server,omitempty"`
	Database DatabaseConfig `yaml:"database,omitempty"`
	LLM      LLMConfig      `yaml:"llm,omitempty"`
	Rerank   RerankerConfig `yaml:"rerank,omitempty"`
	Vector   vector.Config  `yaml:"vector,omitempty"`
	Uploads  UploadsConfig  `yaml:"uploads,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// DatabaseConfig selects the SQL backend shared by the workflow store and
// the structured data store.
type DatabaseConfig struct {
	// Driver is one of sqlite3, postgres, mysql.
	Driver string `yaml:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
}

// LLMConfig configures the OpenAI-compatible chat and embedding client.
type LLMConfig struct {
	BaseURL        string        `yaml:"base_url,omitempty"`
	APIKey         string        `yaml:"api_key,omitempty"`
	Model          string        `yaml:"model,omitempty"`
	EmbeddingModel string        `yaml:"embedding_model,omitempty"`
	Temperature    float64       `yaml:"temperature,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	MaxRetries     int           `yaml:"max_retries,omitempty"`
}

// RerankerConfig configures the optional cross-encoder rerank service.
type RerankerConfig struct {
	Enabled bool          `yaml:"enabled,omitempty"`
	BaseURL string        `yaml:"base_url,omitempty"`
	APIKey  string        `yaml:"api_key,omitempty"`
	Model   string        `yaml:"model,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// UploadsConfig configures where file uploads land.
type UploadsConfig struct {
	Dir           string `yaml:"dir,omitempty"`
	MaxFileSizeMB int    `yaml:"max_file_size_mb,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "workflows.db"
	}
	if c.Uploads.Dir == "" {
		c.Uploads.Dir = "uploads"
	}
	if c.Uploads.MaxFileSizeMB == 0 {
		c.Uploads.MaxFileSizeMB = 25
	}
	c.Vector.SetDefaults()
}

func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (set it in the config file or via OPENAI_API_KEY)")
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Rerank.Enabled && c.Rerank.BaseURL == "" {
		return fmt.Errorf("rerank.base_url is required when rerank is enabled")
	}
	return nil
}

// OpenAI maps the LLM section onto the model client config.
func (c *LLMConfig) OpenAI() model.OpenAIConfig {
	return model.OpenAIConfig{
		BaseURL:        c.BaseURL,
		APIKey:         c.APIKey,
		Model:          c.Model,
		EmbeddingModel: c.EmbeddingModel,
		Temperature:    c.Temperature,
		Timeout:        c.Timeout,
		MaxRetries:     c.MaxRetries,
	}
}

// RerankClient maps the rerank section onto the model client config.
func (c *RerankerConfig) RerankClient() model.RerankConfig {
	return model.RerankConfig{
		BaseURL: c.BaseURL,
		APIKey:  c.APIKey,
		Model:   c.Model,
		Timeout: c.Timeout,
	}
}

// Load reads the YAML file at path, expands ${VAR} references against the
// process environment, decodes, defaults and validates. An empty path yields
// the default configuration with the API key taken from OPENAI_API_KEY.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	expanded, _ := expandValue(raw).(map[string]any)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create config decoder: %w", err)
	}
	if err := decoder.Decode(expanded); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandValue(item)
		}
		return out
	default:
		return v
	}
}

func expandEnvString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		inner := match[2 : len(match)-1]
		if idx := strings.Index(inner, ":-"); idx != -1 {
			if val := os.Getenv(inner[:idx]); val != "" {
				return val
			}
			return inner[idx+2:]
		}
		return os.Getenv(inner)
	})
}
