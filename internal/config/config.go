package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/tally/internal/logging"
)

// DefaultFile is the config file looked up when no path is given.
const DefaultFile = "tally.yml"

// Environment overrides applied after the file is read.
const (
	EnvRedisURL  = "TALLY_REDIS_URL"
	EnvNamespace = "TALLY_NAMESPACE"
)

// Defaults
const (
	DefaultNamespace   = "default"
	DefaultRedisURL    = "redis://localhost:6379/0"
	DefaultTypingGrace = "250ms"
	DefaultSaveTimeout = "10s"
	DefaultPresenceTTL = "2m"
	DefaultServerAddr  = ":8080"
	DefaultLogLevel    = "info"
)

// TallyConfig represents the top-level tally.yml configuration
type TallyConfig struct {
	Version   string          `yaml:"version"`
	Namespace string          `yaml:"namespace,omitempty"` // Key prefix shared by every client of one deployment
	Redis     *RedisConfig    `yaml:"redis,omitempty"`
	Editor    *EditorConfig   `yaml:"editor,omitempty"`
	Presence  *PresenceConfig `yaml:"presence,omitempty"`
	Server    *ServerConfig   `yaml:"server,omitempty"`
	Log       *LogConfig      `yaml:"log,omitempty"`

	typingGrace time.Duration
	saveTimeout time.Duration
	presenceTTL time.Duration
}

// RedisConfig locates the Redis server
type RedisConfig struct {
	URL string `yaml:"url"` // redis://[user:pass@]host:port/db
}

// EditorConfig tunes the local edit state
type EditorConfig struct {
	TypingGrace string `yaml:"typing_grace,omitempty"` // Incoming edits are held back this long after a local keystroke
	SaveTimeout string `yaml:"save_timeout,omitempty"` // An unacknowledged save fails after this long
}

// PresenceConfig tunes "also editing" tracking
type PresenceConfig struct {
	TTL string `yaml:"ttl,omitempty"`
}

// ServerConfig configures the gateway
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn or error
}

// Default returns a configuration with every default applied.
func Default() *TallyConfig {
	c := &TallyConfig{Version: "1.0"}
	if err := c.Validate(); err != nil {
		panic(err)
	}
	return c
}

// Validate performs strict validation on the configuration and fills in defaults
func (c *TallyConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if strings.ContainsAny(c.Namespace, ": ") {
		return fmt.Errorf("namespace must not contain ':' or spaces, got %q", c.Namespace)
	}

	if c.Redis == nil {
		c.Redis = &RedisConfig{}
	}
	if c.Redis.URL == "" {
		c.Redis.URL = DefaultRedisURL
	}
	if !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("redis.url must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Editor == nil {
		c.Editor = &EditorConfig{}
	}
	if c.Editor.TypingGrace == "" {
		c.Editor.TypingGrace = DefaultTypingGrace
	}
	if c.Editor.SaveTimeout == "" {
		c.Editor.SaveTimeout = DefaultSaveTimeout
	}

	var err error
	if c.typingGrace, err = parseDuration("editor.typing_grace", c.Editor.TypingGrace, true); err != nil {
		return err
	}
	if c.saveTimeout, err = parseDuration("editor.save_timeout", c.Editor.SaveTimeout, false); err != nil {
		return err
	}

	if c.Presence == nil {
		c.Presence = &PresenceConfig{}
	}
	if c.Presence.TTL == "" {
		c.Presence.TTL = DefaultPresenceTTL
	}
	if c.presenceTTL, err = parseDuration("presence.ttl", c.Presence.TTL, false); err != nil {
		return err
	}

	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}

	if c.Log == nil {
		c.Log = &LogConfig{}
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}

func parseDuration(field, value string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return d, nil
}

// TypingGrace returns editor.typing_grace. Valid after Validate.
func (c *TallyConfig) TypingGrace() time.Duration { return c.typingGrace }

// SaveTimeout returns editor.save_timeout. Valid after Validate.
func (c *TallyConfig) SaveTimeout() time.Duration { return c.saveTimeout }

// PresenceTTL returns presence.ttl. Valid after Validate.
func (c *TallyConfig) PresenceTTL() time.Duration { return c.presenceTTL }

// ApplyEnv overrides fields from the environment. Call before Validate.
func (c *TallyConfig) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvRedisURL); v != "" {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		c.Redis.URL = v
	}
	if v := getenv(EnvNamespace); v != "" {
		c.Namespace = v
	}
}

// Load reads and validates tally.yml from the specified path
func Load(path string) (*TallyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config TallyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.ApplyEnv(os.Getenv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads path when it exists. A missing file yields the defaults
// with environment overrides applied.
func LoadOrDefault(path string) (*TallyConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		c := &TallyConfig{Version: "1.0"}
		c.ApplyEnv(os.Getenv)
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return c, nil
	}
	return Load(path)
}
