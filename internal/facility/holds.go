package facility

import (
	"fmt"
	"strings"
	"time"

	"supersorting.ai/internal/grid"
)

// CreateHold claims cells for holder until expiry. Every cell must be in
// bounds, not Blocked, uncovered by any other hold and either Empty or
// Reserved by holder itself.
func (s *State) CreateHold(holder string, cells []grid.Vec2, expiry, now time.Time) (Hold, error) {
	if strings.TrimSpace(holder) == "" {
		return Hold{}, fmt.Errorf("%w: empty holder", ErrInvalidArgument)
	}
	if len(cells) == 0 {
		return Hold{}, fmt.Errorf("%w: no cells", ErrInvalidArgument)
	}
	if !expiry.After(now) {
		return Hold{}, fmt.Errorf("%w: expiry not in the future", ErrInvalidArgument)
	}
	if a := s.agents[holder]; a != nil && a.State == AgentExpired {
		return Hold{}, fmt.Errorf("%w: %s", ErrAgentExpired, holder)
	}
	seen := make(map[grid.Vec2]bool, len(cells))
	for _, p := range cells {
		if seen[p] {
			return Hold{}, fmt.Errorf("%w: duplicate cell %v", ErrInvalidArgument, p)
		}
		seen[p] = true
		c := s.cellAt(p)
		if c == nil {
			return Hold{}, fmt.Errorf("%w: %v", ErrOutOfBounds, p)
		}
		if c.Hold != "" {
			return Hold{}, fmt.Errorf("%w: %v already held by %s", ErrCellUnavailable, p, c.Hold)
		}
		switch c.Status {
		case CellEmpty:
		case CellReserved:
			if c.Agent != holder {
				return Hold{}, fmt.Errorf("%w: %v reserved by %s", ErrCellUnavailable, p, c.Agent)
			}
		default:
			return Hold{}, fmt.Errorf("%w: %v is %s", ErrCellUnavailable, p, c.Status)
		}
	}

	h := &Hold{
		ID:        s.newHoldID(),
		Holder:    holder,
		Kind:      HoldClaim,
		Cells:     cloneCells(cells),
		Expiry:    expiry,
		CreatedAt: now,
	}
	s.holds[h.ID] = h
	for _, p := range h.Cells {
		s.cellAt(p).Hold = h.ID
	}
	s.emit(now, Event{Kind: EventHoldCreated, Agent: holder, Hold: h.ID, Cells: cloneCells(h.Cells)})
	return h.clone(), nil
}

// ReleaseHold removes a hold early. An empty holder acts as admin and
// may also release route holds, which aborts the route.
func (s *State) ReleaseHold(id, holder string, now time.Time) error {
	h := s.holds[id]
	if h == nil {
		return fmt.Errorf("%w: %s", ErrUnknownHold, id)
	}
	if holder != "" && h.Holder != holder {
		return fmt.Errorf("%w: hold %s", ErrNotHolder, id)
	}
	if h.Kind == HoldRoute {
		if holder != "" {
			return fmt.Errorf("%w: route hold %s is released by its route", ErrInvalidArgument, id)
		}
		s.abortRoute(s.agents[h.Holder], now, "route hold released")
		return nil
	}
	s.dropClaim(h)
	s.emit(now, Event{Kind: EventHoldReleased, Agent: h.Holder, Hold: id, Cells: cloneCells(h.Cells)})
	return nil
}

// ExpireHold removes a lapsed hold. For a route hold the agent's route
// is aborted.
func (s *State) ExpireHold(id string, now time.Time) error {
	h := s.holds[id]
	if h == nil {
		return fmt.Errorf("%w: %s", ErrUnknownHold, id)
	}
	if !h.Lapsed(now) {
		return fmt.Errorf("%w: %s expires %s", ErrNotLapsed, id, h.Expiry.Format(time.RFC3339Nano))
	}
	cells := cloneCells(h.Cells)
	if h.Kind == HoldRoute {
		s.abortRoute(s.agents[h.Holder], now, "route hold expired")
	} else {
		s.dropClaim(h)
	}
	s.emit(now, Event{Kind: EventHoldExpired, Agent: h.Holder, Hold: id, Cells: cells})
	return nil
}

func (s *State) dropClaim(h *Hold) {
	for _, p := range h.Cells {
		if c := s.cellAt(p); c != nil && c.Hold == h.ID {
			c.Hold = ""
		}
	}
	delete(s.holds, h.ID)
}

// consumeClaimCell removes one cell from a claim; an emptied claim is
// destroyed.
func (s *State) consumeClaimCell(h *Hold, p grid.Vec2, now time.Time) {
	if h == nil {
		return
	}
	if c := s.cellAt(p); c != nil && c.Hold == h.ID {
		c.Hold = ""
	}
	kept := h.Cells[:0]
	for _, q := range h.Cells {
		if q != p {
			kept = append(kept, q)
		}
	}
	h.Cells = kept
	if len(h.Cells) == 0 {
		delete(s.holds, h.ID)
		s.emit(now, Event{Kind: EventHoldReleased, Agent: h.Holder, Hold: h.ID, Detail: "consumed"})
	}
}

// FindFreeCell returns the Empty, unheld cell nearest to the agent,
// ties broken coordinate-ascending.
func (s *State) FindFreeCell(agent string, now time.Time) (grid.Vec2, error) {
	a, err := s.liveAgent(agent)
	if err != nil {
		return grid.Vec2{}, err
	}
	best, bestDist := grid.Vec2{}, -1
	for i := range s.cells {
		c := &s.cells[i]
		if c.Status != CellEmpty || c.Hold != "" {
			continue
		}
		d := grid.Distance(a.Cell, c.Pos, s.cfg.Adjacency)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c.Pos, d
		}
	}
	if bestDist < 0 {
		return grid.Vec2{}, fmt.Errorf("%w: no free cell", ErrCellUnavailable)
	}
	return best, nil
}
