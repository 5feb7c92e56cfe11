package facility

import (
	"time"

	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/pathfinding"
)

type NavOption func(*navigator)

// AllowItem lets the route end on the cell occupied by item, which is
// how a pickup route reaches its item.
func AllowItem(item string) NavOption {
	return func(n *navigator) { n.item = item }
}

type navigator struct {
	s    *State
	now  time.Time
	item string
}

// Navigator exposes the occupancy of s at now to pathfinding. It reads s
// directly and must only be used while the caller holds the store lock.
func (s *State) Navigator(now time.Time, opts ...NavOption) pathfinding.Grid {
	n := &navigator{s: s, now: now}
	for _, o := range opts {
		o(n)
	}
	return n
}

func (n *navigator) Blocked(p grid.Vec2) bool {
	c := n.s.cellAt(p)
	return c == nil || c.Status == CellBlocked
}

func (n *navigator) Enterable(p grid.Vec2, agent string) bool {
	return n.s.enterable(p, agent, n.item, n.now)
}

// PathfindingConfig is the pathfinding view of this state's grid.
func (s *State) PathfindingConfig(maxLength int) pathfinding.Config {
	return pathfinding.Config{
		Width:     s.cfg.Bounds.Width,
		Height:    s.cfg.Bounds.Height,
		Adjacency: s.cfg.Adjacency,
		MaxLength: maxLength,
	}
}
