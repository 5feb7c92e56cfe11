package pathfinding

import (
	"errors"
	"fmt"

	"supersorting.ai/internal/grid"
)

// Config is the facility-wide pathfinding setup. It is read-only once
// the operator has started.
type Config struct {
	Width     int            `json:"width"`
	Height    int            `json:"height"`
	Adjacency grid.Adjacency `json:"adjacency"`
	MaxLength int            `json:"max_path_length"`
}

func (c Config) Bounds() grid.Bounds { return grid.Bounds{Width: c.Width, Height: c.Height} }

var ErrInvalidConfig = errors.New("invalid pathfinding config")

type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pathfinding config: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// Verify rejects configurations under which no route could ever be found.
// It runs before the operator binds its listener.
func Verify(cfg Config) error {
	if cfg.Width <= 0 {
		return &ConfigError{Field: "width", Reason: "must be > 0"}
	}
	if cfg.Height <= 0 {
		return &ConfigError{Field: "height", Reason: "must be > 0"}
	}
	if !cfg.Adjacency.Valid() {
		return &ConfigError{Field: "adjacency", Reason: fmt.Sprintf("must be 4 or 8, got %d", cfg.Adjacency)}
	}
	if cfg.MaxLength <= 0 {
		return &ConfigError{Field: "max_path_length", Reason: "must be > 0"}
	}
	return nil
}
