// Package config loads the operator configuration. It is read once at
// startup and never changes afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/pathfinding"
)

const DefaultPath = "configs/operator.yaml"

type Config struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`

	Auth   AuthConfig   `yaml:"auth"`
	Grid   GridConfig   `yaml:"pathfinding"`
	Expiry ExpiryConfig `yaml:"expiry"`
	Defrag DefragConfig `yaml:"defrag"`
	Index  IndexConfig  `yaml:"index"`
	Events EventsConfig `yaml:"events"`
	Debug  DebugConfig  `yaml:"debug"`
}

type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

type GridConfig struct {
	Width         int      `yaml:"width"`
	Height        int      `yaml:"height"`
	Adjacency     int      `yaml:"adjacency"`
	MaxPathLength int      `yaml:"max_path_length"`
	Blocked       [][2]int `yaml:"blocked,omitempty"`
}

type ExpiryConfig struct {
	AgentHeartbeat Duration `yaml:"agent_heartbeat"`
	RouteHold      Duration `yaml:"route_hold"`
	DefaultHold    Duration `yaml:"default_hold"`
}

type DefragConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Home     [2]int `yaml:"home"`
	MaxMoves int    `yaml:"max_moves"`
}

type IndexConfig struct {
	// Backend is "sqlite" or "none".
	Backend string `yaml:"backend"`
}

type EventsConfig struct {
	RedisAddr string `yaml:"redis_addr"`
	Channel   string `yaml:"channel"`
}

type DebugConfig struct {
	CheckInvariants bool `yaml:"check_invariants"`
}

// Duration reads YAML duration strings such as "10s" or "1m30s".
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", n.Line, err)
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// Load reads path (or only defaults when path is empty), applies the
// SSS_* environment overrides, then normalizes and validates.
func Load(path string) (Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		if path == "" {
			return cfg, fmt.Errorf("config: %w", err)
		}
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Host:    "127.0.0.1",
		Port:    8080,
		DataDir: "./data",
		Grid: GridConfig{
			Width:         32,
			Height:        32,
			Adjacency:     4,
			MaxPathLength: 256,
		},
		Expiry: ExpiryConfig{
			AgentHeartbeat: Duration(10 * time.Second),
			RouteHold:      Duration(30 * time.Second),
			DefaultHold:    Duration(60 * time.Second),
		},
		Defrag: DefragConfig{MaxMoves: 4},
		Index:  IndexConfig{Backend: "sqlite"},
		Events: EventsConfig{Channel: "sss:events"},
	}
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv("SSS_HOST")); v != "" {
		c.Host = v
	}
	if v := strings.TrimSpace(getenv("SSS_PORT")); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SSS_PORT: %w", err)
		}
		c.Port = p
	}
	if v := strings.TrimSpace(getenv("SSS_API_KEYS")); v != "" {
		c.Auth.APIKeys = nil
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				c.Auth.APIKeys = append(c.Auth.APIKeys, k)
			}
		}
	}
	if v := strings.TrimSpace(getenv("SSS_DATA_DIR")); v != "" {
		c.DataDir = v
	}
	if v := strings.TrimSpace(getenv("SSS_REDIS_ADDR")); v != "" {
		c.Events.RedisAddr = v
	}
	return nil
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Host = strings.TrimSpace(c.Host)
	c.Index.Backend = strings.ToLower(strings.TrimSpace(c.Index.Backend))
	if c.Index.Backend == "" {
		c.Index.Backend = "sqlite"
	}
	if strings.TrimSpace(c.Events.Channel) == "" {
		c.Events.Channel = "sss:events"
	}
	if c.Defrag.MaxMoves < 0 {
		c.Defrag.MaxMoves = 0
	}
	for i, k := range c.Auth.APIKeys {
		c.Auth.APIKeys[i] = strings.ToLower(strings.TrimSpace(k))
	}
}

// Validate rejects settings the operator cannot start with. Pathfinding
// dimensions are checked separately by pathfinding.Verify so that a bad
// grid is reported as a pathfinding configuration error.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in [1, 65535], got %d", c.Port)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.api_keys must not be empty")
	}
	for i, k := range c.Auth.APIKeys {
		if _, err := uuid.Parse(k); err != nil {
			return fmt.Errorf("auth.api_keys[%d]: %w", i, err)
		}
	}
	if c.Expiry.AgentHeartbeat <= 0 {
		return fmt.Errorf("expiry.agent_heartbeat must be > 0")
	}
	if c.Expiry.RouteHold <= 0 {
		return fmt.Errorf("expiry.route_hold must be > 0")
	}
	if c.Expiry.DefaultHold <= 0 {
		return fmt.Errorf("expiry.default_hold must be > 0")
	}
	b := grid.Bounds{Width: c.Grid.Width, Height: c.Grid.Height}
	for i, p := range c.Grid.Blocked {
		if b.Size() > 0 && !b.Contains(grid.FromArray(p)) {
			return fmt.Errorf("pathfinding.blocked[%d] %v outside %dx%d", i, p, b.Width, b.Height)
		}
	}
	if c.Defrag.Enabled && b.Size() > 0 && !b.Contains(grid.FromArray(c.Defrag.Home)) {
		return fmt.Errorf("defrag.home %v outside %dx%d", c.Defrag.Home, b.Width, b.Height)
	}
	switch c.Index.Backend {
	case "sqlite", "none":
	default:
		return fmt.Errorf("index.backend must be sqlite or none, got %q", c.Index.Backend)
	}
	return nil
}

func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

func (c Config) Pathfinding() pathfinding.Config {
	return pathfinding.Config{
		Width:     c.Grid.Width,
		Height:    c.Grid.Height,
		Adjacency: grid.Adjacency(c.Grid.Adjacency),
		MaxLength: c.Grid.MaxPathLength,
	}
}

func (c Config) Facility() facility.Config {
	blocked := make([]grid.Vec2, 0, len(c.Grid.Blocked))
	for _, p := range c.Grid.Blocked {
		blocked = append(blocked, grid.FromArray(p))
	}
	return facility.Config{
		Bounds:    grid.Bounds{Width: c.Grid.Width, Height: c.Grid.Height},
		Adjacency: grid.Adjacency(c.Grid.Adjacency),
		Blocked:   blocked,
		RouteTTL:  c.Expiry.RouteHold.D(),
	}
}

// APIKeys returns the allow-set of gateway keys.
func (c Config) APIKeys() map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(c.Auth.APIKeys))
	for _, k := range c.Auth.APIKeys {
		if id, err := uuid.Parse(k); err == nil {
			out[id] = true
		}
	}
	return out
}
