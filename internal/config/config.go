package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models taskline.yml.
type Config struct {
	Store   Store   `yaml:"store"`
	Cache   Cache   `yaml:"cache"`
	Engine  Engine  `yaml:"engine"`
	Server  Server  `yaml:"server"`
	MCP     MCP     `yaml:"mcp"`
	Events  Events  `yaml:"events"`
	Logging Logging `yaml:"logging"`
}

type Store struct {
	Driver   string `yaml:"driver"`
	Key      string `yaml:"key"`
	SQLite   SQLite `yaml:"sqlite"`
	Postgres struct {
		DSN      string `yaml:"dsn"`
		MaxConns int32  `yaml:"max_conns"`
	} `yaml:"postgres"`
	NATS struct {
		URL    string `yaml:"url"`
		Bucket string `yaml:"bucket"`
	} `yaml:"nats"`
}

type SQLite struct {
	Workspace string `yaml:"workspace"`
}

type Cache struct {
	Enabled      bool          `yaml:"enabled"`
	MaxCostBytes int64         `yaml:"max_cost_bytes"`
	TTL          time.Duration `yaml:"ttl"`
}

type Engine struct {
	// Mode is "shared" (one engine per process) or "per-request".
	Mode string `yaml:"mode"`
}

type Server struct {
	Addr       string `yaml:"addr"`
	BasePath   string `yaml:"base_path"`
	CORSOrigin string `yaml:"cors_origin"`
	JWTSecret  string `yaml:"jwt_secret"`
}

type MCP struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

type Events struct {
	NATSURL     string    `yaml:"nats_url"`
	NATSSubject string    `yaml:"nats_subject"`
	Webhooks    []Webhook `yaml:"webhooks"`
}

type Webhook struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Active reports whether the webhook should receive events.
func (w Webhook) Active() bool {
	return strings.TrimSpace(w.URL) != "" && (w.Enabled == nil || *w.Enabled)
}

type Logging struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Service string `yaml:"service"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNATS     = "nats"
	DriverMemory   = "memory"

	ModeShared     = "shared"
	ModePerRequest = "per-request"
)

// Load reads and validates config from workspace. A missing file yields defaults.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.Store.SQLite.Workspace = workspace
			return cfg, nil
		}
		return nil, err
	}
	cfg, err := FromYAML(data)
	if err != nil {
		return nil, err
	}
	if cfg.Store.SQLite.Workspace == "" {
		cfg.Store.SQLite.Workspace = workspace
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("config.store.postgres.dsn is required for driver postgres")
		}
	case DriverNATS:
		if c.Store.NATS.URL == "" {
			return fmt.Errorf("config.store.nats.url is required for driver nats")
		}
		if c.Store.NATS.Bucket == "" {
			return fmt.Errorf("config.store.nats.bucket is required for driver nats")
		}
	default:
		return fmt.Errorf("config.store.driver must be one of sqlite, postgres, nats, memory (got %q)", c.Store.Driver)
	}
	if c.Store.Key == "" {
		return fmt.Errorf("config.store.key is required")
	}
	if c.Cache.Enabled && c.Cache.MaxCostBytes <= 0 {
		return fmt.Errorf("config.cache.max_cost_bytes must be positive when the cache is enabled")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("config.cache.ttl must not be negative")
	}
	if c.Engine.Mode != ModeShared && c.Engine.Mode != ModePerRequest {
		return fmt.Errorf("config.engine.mode must be 'shared' or 'per-request'")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.MCP.Path != "" && !strings.HasPrefix(c.MCP.Path, "/") {
		return fmt.Errorf("config.mcp.path must start with /")
	}
	if c.Events.NATSURL != "" && c.Events.NATSSubject == "" {
		return fmt.Errorf("config.events.nats_subject is required when nats_url is set")
	}
	for i, w := range c.Events.Webhooks {
		if w.TimeoutSeconds < 0 {
			return fmt.Errorf("config.events.webhooks[%d].timeout_seconds must be >= 0", i)
		}
		if w.Active() && !strings.HasPrefix(w.URL, "http://") && !strings.HasPrefix(w.URL, "https://") {
			return fmt.Errorf("config.events.webhooks[%d].url must be an http(s) URL", i)
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("config.logging.format must be 'json' or 'text'")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted keys keep
// their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `store:
  driver: sqlite
  key: tasks
  sqlite:
    workspace: ""
  postgres:
    dsn: ""
    max_conns: 4
  nats:
    url: ""
    bucket: taskline

cache:
  enabled: false
  max_cost_bytes: 8388608
  ttl: 30s

engine:
  mode: shared

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  cors_origin: "*"
  jwt_secret: ""

mcp:
  name: taskline
  path: /mcp

events:
  nats_url: ""
  nats_subject: taskline.events
  # webhooks:
  #   - url: https://example.com/hooks/taskline
  #     secret: ""
  #     events: [request.completed, task.done]
  #     timeout_seconds: 5

logging:
  level: info
  format: json
  service: taskline
`
