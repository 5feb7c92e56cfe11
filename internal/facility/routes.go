package facility

import (
	"fmt"
	"time"

	"supersorting.ai/internal/grid"
)

type RouteRequest struct {
	Agent string
	Kind  OperationKind
	// Item is the item to pick up (Pickup) or the carried item (Deliver).
	Item string
	// Path starts at the agent's current cell and ends at the goal.
	Path []grid.Vec2
}

// CommitRoute validates req against the current state and, only if every
// check passes, reserves the path, opens the route hold and starts the
// operation. Any mismatch with the current state is ErrStaleRoute.
func (s *State) CommitRoute(req RouteRequest, now time.Time) (Operation, error) {
	a, err := s.liveAgent(req.Agent)
	if err != nil {
		return Operation{}, err
	}
	if a.Operation != nil {
		return Operation{}, fmt.Errorf("%w: %s runs %s", ErrAgentBusy, a.ID, a.Operation.ID)
	}
	if len(req.Path) < 2 {
		return Operation{}, fmt.Errorf("%w: path needs at least two cells", ErrInvalidRoute)
	}
	goal := req.Path[len(req.Path)-1]

	var item *Item
	switch req.Kind {
	case OpPickup:
		if a.State != AgentIdle || a.Carrying != "" {
			return Operation{}, fmt.Errorf("%w: agent %s is %s", ErrStaleRoute, a.ID, a.State)
		}
		item = s.items[req.Item]
		if item == nil {
			return Operation{}, fmt.Errorf("%w: %s", ErrUnknownItem, req.Item)
		}
		if item.State != ItemStaged || item.Cell == nil || *item.Cell != goal {
			return Operation{}, fmt.Errorf("%w: item %s is %s", ErrStaleRoute, item.ID, item.State)
		}
	case OpDeliver:
		if a.Carrying == "" || a.Carrying != req.Item {
			return Operation{}, fmt.Errorf("%w: agent %s does not carry %s", ErrStaleRoute, a.ID, req.Item)
		}
		item = s.items[req.Item]
		if item.Dropoff == nil || *item.Dropoff != goal {
			return Operation{}, fmt.Errorf("%w: goal %v is not the dropoff", ErrInvalidRoute, goal)
		}
	case OpReposition:
		if a.State != AgentIdle || a.Carrying != "" {
			return Operation{}, fmt.Errorf("%w: agent %s is %s", ErrStaleRoute, a.ID, a.State)
		}
	default:
		return Operation{}, fmt.Errorf("%w: kind %s", ErrInvalidRoute, req.Kind)
	}

	if req.Path[0] != a.Cell {
		return Operation{}, fmt.Errorf("%w: path starts at %v, agent at %v", ErrStaleRoute, req.Path[0], a.Cell)
	}
	allow := ""
	if req.Kind == OpPickup {
		allow = item.ID
	}
	seen := make(map[grid.Vec2]bool, len(req.Path))
	seen[req.Path[0]] = true
	for i := 1; i < len(req.Path); i++ {
		p := req.Path[i]
		if !grid.Adjacent(req.Path[i-1], p, s.cfg.Adjacency) {
			return Operation{}, fmt.Errorf("%w: %v -> %v not adjacent", ErrInvalidRoute, req.Path[i-1], p)
		}
		if seen[p] {
			return Operation{}, fmt.Errorf("%w: %v repeated", ErrInvalidRoute, p)
		}
		seen[p] = true
		itemOK := ""
		if i == len(req.Path)-1 {
			itemOK = allow
		}
		if !s.enterable(p, a.ID, itemOK, now) {
			return Operation{}, fmt.Errorf("%w: %v not enterable", ErrStaleRoute, p)
		}
	}

	expiry := now.Add(s.cfg.RouteTTL)
	h := &Hold{
		ID:        s.newHoldID(),
		Holder:    a.ID,
		Kind:      HoldRoute,
		Cells:     cloneCells(req.Path[1:]),
		Expiry:    expiry,
		CreatedAt: now,
	}
	s.holds[h.ID] = h
	for _, p := range h.Cells {
		c := s.cellAt(p)
		c.Status = CellReserved
		c.Item = ""
		c.Agent = a.ID
		c.Expiry = expiry
	}
	op := &Operation{
		ID:        s.newOperationID(),
		Kind:      req.Kind,
		Item:      req.Item,
		Goal:      goal,
		Path:      cloneCells(req.Path),
		Hold:      h.ID,
		CreatedAt: now,
	}
	a.Operation = op
	a.Path = cloneCells(req.Path[1:])
	a.State = AgentActive
	if req.Kind == OpPickup {
		item.State = ItemInTransit
		item.Agent = a.ID
		item.Cell = nil
	}
	s.emit(now, Event{
		Kind:      EventRouteCommitted,
		Agent:     a.ID,
		Item:      req.Item,
		Hold:      h.ID,
		Operation: op.ID,
		Cells:     cloneCells(req.Path),
		Detail:    req.Kind.String(),
	})
	return op.clone(), nil
}

// AbortRoute cancels the agent's operation, releasing its unconsumed
// reservations.
func (s *State) AbortRoute(agent string, now time.Time) error {
	a, err := s.liveAgent(agent)
	if err != nil {
		return err
	}
	if a.Operation == nil {
		return fmt.Errorf("%w: %s", ErrNoOperation, agent)
	}
	s.abortRoute(a, now, "aborted")
	return nil
}

func (s *State) abortRoute(a *Agent, now time.Time, reason string) {
	if a == nil || a.Operation == nil {
		return
	}
	op := a.Operation
	released := cloneCells(a.Path)
	for _, p := range a.Path {
		if c := s.cellAt(p); c != nil && c.Status == CellReserved && c.Agent == a.ID {
			c.Status = CellEmpty
			c.Agent = ""
			c.Expiry = time.Time{}
		}
	}
	if op.Kind == OpPickup {
		if it := s.items[op.Item]; it != nil && it.State == ItemInTransit && it.Agent == a.ID && a.Carrying != it.ID {
			goal := op.Goal
			c := s.cellAt(goal)
			c.Status = CellOccupied
			c.Item = it.ID
			it.State = ItemStaged
			it.Cell = &goal
			it.Agent = ""
		}
	}
	delete(s.holds, op.Hold)
	a.Operation = nil
	a.Path = nil
	if a.Carrying == "" {
		a.State = AgentIdle
	}
	s.emit(now, Event{Kind: EventRouteAborted, Agent: a.ID, Item: op.Item, Hold: op.Hold, Operation: op.ID, Cells: released, Detail: reason})
}

// AdvanceAgent moves the agent onto the next cell of its route. The cell
// it leaves is freed, the route hold shrinks and its expiry is pushed
// out. Reaching the last cell completes the operation.
func (s *State) AdvanceAgent(agent string, to grid.Vec2, now time.Time) (Agent, error) {
	a, err := s.liveAgent(agent)
	if err != nil {
		return Agent{}, err
	}
	if a.Operation == nil || len(a.Path) == 0 {
		return Agent{}, fmt.Errorf("%w: %s", ErrNoOperation, agent)
	}
	if a.Path[0] != to {
		return Agent{}, fmt.Errorf("%w: next cell is %v, got %v", ErrUnexpectedStep, a.Path[0], to)
	}
	s.step(a, now)
	return a.clone(), nil
}

// CompleteOperation finishes opID, walking the agent through whatever
// remains of its route.
func (s *State) CompleteOperation(agent, opID string, now time.Time) (Agent, error) {
	a, err := s.liveAgent(agent)
	if err != nil {
		return Agent{}, err
	}
	if a.Operation == nil {
		return Agent{}, fmt.Errorf("%w: %s", ErrNoOperation, agent)
	}
	if a.Operation.ID != opID {
		return Agent{}, fmt.Errorf("%w: running %s, not %s", ErrStaleRoute, a.Operation.ID, opID)
	}
	for a.Operation != nil && len(a.Path) > 0 {
		s.step(a, now)
	}
	return a.clone(), nil
}

func (s *State) step(a *Agent, now time.Time) {
	from, to := a.Cell, a.Path[0]
	if c := s.cellAt(from); c.Status == CellReserved && c.Agent == a.ID {
		c.Status = CellEmpty
		c.Agent = ""
		c.Expiry = time.Time{}
	}
	a.Cell = to
	a.Path = a.Path[1:]
	a.LastHeartbeat = now
	s.cellAt(to).Expiry = time.Time{}

	h := s.holds[a.Operation.Hold]
	expiry := now.Add(s.cfg.RouteTTL)
	h.Cells = cloneCells(a.Path)
	h.Expiry = expiry
	for _, p := range a.Path {
		s.cellAt(p).Expiry = expiry
	}
	s.emit(now, Event{Kind: EventAgentMoved, Agent: a.ID, Operation: a.Operation.ID, Cells: []grid.Vec2{from, to}})

	if len(a.Path) == 0 {
		s.completeOperation(a, now)
	}
}

func (s *State) completeOperation(a *Agent, now time.Time) {
	op := a.Operation
	delete(s.holds, op.Hold)
	a.Operation = nil
	a.Path = nil

	switch op.Kind {
	case OpPickup:
		it := s.items[op.Item]
		s.emit(now, Event{Kind: EventItemPickedUp, Agent: a.ID, Item: it.ID, Operation: op.ID})
		if it.Dropoff != nil {
			a.Carrying = it.ID
			a.State = AgentActive
		} else {
			s.deliver(it, a.ID, now)
			a.State = AgentIdle
		}
	case OpDeliver:
		s.deliver(s.items[a.Carrying], a.ID, now)
		a.Carrying = ""
		a.State = AgentIdle
	case OpReposition:
		a.State = AgentIdle
	}
	s.emit(now, Event{Kind: EventRouteCompleted, Agent: a.ID, Item: op.Item, Operation: op.ID, Cells: []grid.Vec2{a.Cell}, Detail: op.Kind.String()})
}
