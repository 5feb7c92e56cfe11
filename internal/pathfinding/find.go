package pathfinding

import (
	"errors"

	"supersorting.ai/internal/grid"
)

var (
	ErrNoRoute          = errors.New("no route")
	ErrInvalidEndpoint  = errors.New("invalid endpoint")
	ErrExceedsMaxLength = errors.New("route exceeds max length")
)

// Retryable reports whether err is an expected pathfinding outcome that
// the caller should retry on a later tick or request.
func Retryable(err error) bool {
	return errors.Is(err, ErrNoRoute) || errors.Is(err, ErrInvalidEndpoint) || errors.Is(err, ErrExceedsMaxLength)
}

// Grid is the view of facility occupancy the search runs against.
type Grid interface {
	// Blocked reports static obstacles; a blocked endpoint is invalid.
	Blocked(p grid.Vec2) bool
	// Enterable reports whether agent may step into p.
	Enterable(p grid.Vec2, agent string) bool
}

type Query struct {
	Start grid.Vec2
	Goal  grid.Vec2
	Agent string
}

// Find returns a shortest route from q.Start to q.Goal, both included.
// Search is breadth-first with neighbours expanded in grid.Neighbors
// order and the first discovery of a cell fixing its predecessor, so
// identical inputs always yield the identical path.
func Find(g Grid, cfg Config, q Query) ([]grid.Vec2, error) {
	b := cfg.Bounds()
	if !b.Contains(q.Start) || !b.Contains(q.Goal) {
		return nil, ErrInvalidEndpoint
	}
	if g.Blocked(q.Start) || g.Blocked(q.Goal) {
		return nil, ErrInvalidEndpoint
	}
	if q.Start == q.Goal {
		return []grid.Vec2{q.Start}, nil
	}

	index := func(p grid.Vec2) int { return p.X*b.Height + p.Y }

	prev := make([]int32, b.Size())
	for i := range prev {
		prev[i] = -1
	}
	startIdx := index(q.Start)
	prev[startIdx] = int32(startIdx)

	queue := make([]grid.Vec2, 0, 64)
	queue = append(queue, q.Start)
	found := false

	for head := 0; head < len(queue) && !found; head++ {
		cur := queue[head]
		for _, np := range grid.Neighbors(cur, cfg.Adjacency) {
			if !b.Contains(np) {
				continue
			}
			ni := index(np)
			if prev[ni] != -1 {
				continue
			}
			if g.Blocked(np) || !g.Enterable(np, q.Agent) {
				continue
			}
			prev[ni] = int32(index(cur))
			if np == q.Goal {
				found = true
				break
			}
			queue = append(queue, np)
		}
	}
	if !found {
		return nil, ErrNoRoute
	}

	var rev []grid.Vec2
	for i := index(q.Goal); ; i = int(prev[i]) {
		rev = append(rev, grid.Vec2{X: i / b.Height, Y: i % b.Height})
		if i == startIdx {
			break
		}
	}
	if len(rev)-1 > cfg.MaxLength {
		return nil, ErrExceedsMaxLength
	}
	path := make([]grid.Vec2, len(rev))
	for i := range rev {
		path[i] = rev[len(rev)-1-i]
	}
	return path, nil
}
