package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

const (
	DefaultBaseDir    = ".svgen"
	DefaultConfigFile = "config.yaml"
)

// Config is the config file of one app.
type Config struct {
	AppName string `yaml:"-"`

	CurrentContext string              `yaml:"current_context,omitempty"`
	Contexts       map[string]*Context `yaml:"contexts,omitempty"`

	configPath string
}

// Context is a named inference endpoint plus generation defaults. Zero
// values fall back to the built-in defaults.
type Context struct {
	Name string `yaml:"name"`

	BaseURL string `yaml:"base_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
	Model   string `yaml:"model,omitempty"`

	Temperature  float32 `yaml:"temperature,omitempty"`
	MaxTokens    int     `yaml:"max_tokens,omitempty"`
	Size         int     `yaml:"size,omitempty"`
	CurrentColor bool    `yaml:"current_color,omitempty"`
	MaxAttempts  int     `yaml:"max_attempts,omitempty"`
	SkipFree     bool    `yaml:"skip_free,omitempty"`

	// WarmUp sends a one-token request after loading the model.
	WarmUp bool `yaml:"warm_up,omitempty"`

	Export *S3Export `yaml:"export,omitempty"`
}

// S3Export configures artifact export to an S3-compatible bucket.
type S3Export struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// LoadConfig loads ~/.svgen/<app>/config.yaml, creating it if missing.
func LoadConfig(appName string) (*Config, error) {
	return LoadConfigWithPath(appName, "")
}

// LoadConfigWithPath is LoadConfig with an explicit file path.
func LoadConfigWithPath(appName, customPath string) (*Config, error) {
	configPath := customPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cli: home directory: %w", err)
		}
		configPath = filepath.Join(home, DefaultBaseDir, appName, DefaultConfigFile)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return nil, fmt.Errorf("cli: create config directory: %w", err)
	}

	cfg := &Config{
		AppName:    appName,
		Contexts:   make(map[string]*Context),
		configPath: configPath,
	}
	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, cfg.Save()
	}
	if err != nil {
		return nil, fmt.Errorf("cli: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cli: parse config %s: %w", configPath, err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, c := range cfg.Contexts {
		c.Name = name
	}
	cfg.AppName = appName
	cfg.configPath = configPath
	return cfg, nil
}

// Save writes the config with owner-only permissions; it may hold API keys.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("cli: marshal config: %w", err)
	}
	if err := os.WriteFile(c.configPath, data, 0o600); err != nil {
		return fmt.Errorf("cli: write config: %w", err)
	}
	return nil
}

func (c *Config) Path() string { return c.configPath }

func (c *Config) Dir() string { return filepath.Dir(c.configPath) }

// AddContext adds or replaces a context and saves.
func (c *Config) AddContext(name string, ctx *Context) error {
	if name == "" {
		return errors.New("cli: context name is required")
	}
	ctx.Name = name
	c.Contexts[name] = ctx
	if c.CurrentContext == "" {
		c.CurrentContext = name
	}
	return c.Save()
}

func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("cli: context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("cli: context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("cli: context %q not found", name)
	}
	return ctx, nil
}

// ResolveContext returns the named context, the current one when name is
// empty, or nil when no context is configured at all.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name != "" {
		return c.GetContext(name)
	}
	if c.CurrentContext == "" {
		return nil, nil
	}
	return c.GetContext(c.CurrentContext)
}

// ListContexts returns the context names in sorted order.
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Environment variables that override the resolved context.
const (
	EnvBaseURL = "SVGEN_BASE_URL"
	EnvAPIKey  = "SVGEN_API_KEY"
	EnvModel   = "SVGEN_MODEL"
	EnvSize    = "SVGEN_SIZE"
)

// Settings are the effective values after merging defaults, the context
// and the environment.
type Settings struct {
	Context string `yaml:"context,omitempty" json:"context,omitempty"`

	BaseURL string `yaml:"base_url" json:"base_url"`
	APIKey  string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Model   string `yaml:"model,omitempty" json:"model,omitempty"`

	Temperature  float32 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens    int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Size         int     `yaml:"size,omitempty" json:"size,omitempty"`
	CurrentColor bool    `yaml:"current_color,omitempty" json:"current_color,omitempty"`
	MaxAttempts  int     `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`
	SkipFree     bool    `yaml:"skip_free,omitempty" json:"skip_free,omitempty"`
	WarmUp       bool    `yaml:"warm_up,omitempty" json:"warm_up,omitempty"`

	Export *S3Export `yaml:"export,omitempty" json:"export,omitempty"`
}

// DefaultBaseURL is the OpenAI-compatible endpoint of a local Ollama.
const DefaultBaseURL = "http://localhost:11434/v1"

// Resolve merges the named (or current) context with environment
// overrides read through getenv.
func (c *Config) Resolve(name string, getenv func(string) string) (Settings, error) {
	ctx, err := c.ResolveContext(name)
	if err != nil {
		return Settings{}, err
	}
	s := Settings{BaseURL: DefaultBaseURL}
	if ctx != nil {
		s.Context = ctx.Name
		s.APIKey = ctx.APIKey
		s.Model = ctx.Model
		s.Temperature = ctx.Temperature
		s.MaxTokens = ctx.MaxTokens
		s.Size = ctx.Size
		s.CurrentColor = ctx.CurrentColor
		s.MaxAttempts = ctx.MaxAttempts
		s.SkipFree = ctx.SkipFree
		s.WarmUp = ctx.WarmUp
		s.Export = ctx.Export
		if ctx.BaseURL != "" {
			s.BaseURL = ctx.BaseURL
		}
	}
	if getenv == nil {
		return s, nil
	}
	if v := getenv(EnvBaseURL); v != "" {
		s.BaseURL = v
	}
	if v := getenv(EnvAPIKey); v != "" {
		s.APIKey = v
	}
	if v := getenv(EnvModel); v != "" {
		s.Model = v
	}
	if v := getenv(EnvSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Settings{}, fmt.Errorf("cli: %s=%q is not a positive integer", EnvSize, v)
		}
		s.Size = n
	}
	return s, nil
}

// MaskAPIKey hides all but the ends of key.
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
