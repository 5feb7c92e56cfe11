// Package routing turns an agent's goal into a committed route: search
// against the current occupancy, then reserve the result atomically.
package routing

import (
	"errors"
	"fmt"
	"time"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/pathfinding"
)

// MaxAttempts bounds recomputation when a route goes stale between
// search and commit.
const MaxAttempts = 3

type Request struct {
	Agent string
	Kind  facility.OperationKind
	Item  string
	Goal  grid.Vec2
	// Start overrides the agent's cell. Only Plan honours it; a committed
	// route always starts where the agent stands.
	Start *grid.Vec2
}

type Planner struct {
	maxLength int

	beforeCommit func(attempt int) // test hook
}

func NewPlanner(cfg pathfinding.Config) *Planner {
	return &Planner{maxLength: cfg.MaxLength}
}

// Plan searches a route for req against st at now. The caller must hold
// the store lock.
func (p *Planner) Plan(st *facility.State, req Request, now time.Time) ([]grid.Vec2, error) {
	a, ok := st.Agent(req.Agent)
	if !ok {
		return nil, fmt.Errorf("%w: %s", facility.ErrUnknownAgent, req.Agent)
	}
	if a.State == facility.AgentExpired {
		return nil, fmt.Errorf("%w: %s", facility.ErrAgentExpired, req.Agent)
	}
	var opts []facility.NavOption
	if req.Kind == facility.OpPickup {
		opts = append(opts, facility.AllowItem(req.Item))
	}
	start := a.Cell
	if req.Start != nil {
		start = *req.Start
	}
	return pathfinding.Find(st.Navigator(now, opts...), st.PathfindingConfig(p.maxLength), pathfinding.Query{
		Start: start,
		Goal:  req.Goal,
		Agent: req.Agent,
	})
}

// Commit plans and commits in one step. Used by tick services, which
// already run under the store lock, so the route cannot go stale.
func (p *Planner) Commit(st *facility.State, req Request, now time.Time) (facility.Operation, error) {
	req.Start = nil
	path, err := p.Plan(st, req, now)
	if err != nil {
		return facility.Operation{}, err
	}
	return st.CommitRoute(facility.RouteRequest{Agent: req.Agent, Kind: req.Kind, Item: req.Item, Path: path}, now)
}

// Route searches under View and commits under Update, so the search does
// not hold the write path. A route invalidated in between is recomputed
// up to MaxAttempts times; pathfinding failures are returned as is.
func (p *Planner) Route(store *facility.Store, req Request, now time.Time) (facility.Operation, error) {
	req.Start = nil
	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		var path []grid.Vec2
		if err := store.View(func(st *facility.State) error {
			var err error
			path, err = p.Plan(st, req, now)
			return err
		}); err != nil {
			return facility.Operation{}, err
		}

		if p.beforeCommit != nil {
			p.beforeCommit(attempt)
		}
		var op facility.Operation
		err := store.Update(func(st *facility.State) error {
			var err error
			op, err = st.CommitRoute(facility.RouteRequest{Agent: req.Agent, Kind: req.Kind, Item: req.Item, Path: path}, now)
			return err
		})
		if err == nil {
			return op, nil
		}
		if !errors.Is(err, facility.ErrStaleRoute) {
			return facility.Operation{}, err
		}
		lastErr = err
	}
	return facility.Operation{}, fmt.Errorf("after %d attempts: %w", MaxAttempts, lastErr)
}
