package cli

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is the base configuration directory name
	DefaultBaseDir = ".fieldstream"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.yaml"
)

// Config holds the relay contexts of the CLI.
type Config struct {
	CurrentContext string              `yaml:"current_context,omitempty"`
	Contexts       map[string]*Context `yaml:"contexts,omitempty"`

	path string
}

// Context is one relay endpoint the CLI can talk to.
type Context struct {
	Name string `yaml:"name"`

	// RelayURL is the full URL of the relay generate endpoint.
	RelayURL string `yaml:"relay_url"`

	// Credential is sent as bearer token.
	Credential string `yaml:"credential,omitempty"`

	// Timeout bounds a whole generation, in seconds.
	Timeout int `yaml:"timeout,omitempty"`
}

// TimeoutDuration returns Timeout as a duration, zero meaning no limit.
func (ctx *Context) TimeoutDuration() time.Duration {
	return time.Duration(ctx.Timeout) * time.Second
}

// LoadConfigWithPath reads the config at customPath, or at
// ~/.fieldstream/<appName>/config.yaml when it is empty. A missing file
// yields an empty config that is written on the first change.
func LoadConfigWithPath(appName, customPath string) (*Config, error) {
	path := customPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, DefaultBaseDir, appName, DefaultConfigFile)
	}

	cfg := &Config{path: path}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	return cfg, nil
}

// Save writes the configuration, creating its directory when needed.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Path returns the config file path
func (c *Config) Path() string {
	return c.path
}

// AddContext adds or replaces a context. RelayURL must be an absolute
// http(s) URL.
func (c *Config) AddContext(name string, ctx *Context) error {
	u, err := url.Parse(ctx.RelayURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("context %q: relay_url must be an http(s) URL, got %q", name, ctx.RelayURL)
	}
	ctx.Name = name
	c.Contexts[name] = ctx
	return c.Save()
}

// DeleteContext removes a context
func (c *Config) DeleteContext(name string) error {
	if _, err := c.GetContext(name); err != nil {
		return err
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext sets the current context
func (c *Config) UseContext(name string) error {
	if _, err := c.GetContext(name); err != nil {
		return err
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns a specific context
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return ctx, nil
}

// ResolveContext returns the named context, or the current one when name is
// empty.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name == "" {
		name = c.CurrentContext
	}
	if name == "" {
		return nil, fmt.Errorf("no current context set")
	}
	return c.GetContext(name)
}

// ListContexts returns all context names, sorted
func (c *Config) ListContexts() []string {
	return slices.Sorted(maps.Keys(c.Contexts))
}

// MaskCredential masks a secret for display
func MaskCredential(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
