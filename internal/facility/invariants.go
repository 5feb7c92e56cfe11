package facility

import (
	"fmt"

	"supersorting.ai/internal/grid"
)

// CheckInvariants verifies the cross-record consistency of the state:
// every cell status is backed by exactly one owner and every owner
// references only cells that agree with it. It returns the first
// violation found.
func (s *State) CheckInvariants() error {
	reservedBy := map[grid.Vec2]string{}
	for _, id := range s.agentIDs() {
		a := s.agents[id]
		if a.State == AgentExpired {
			if a.Operation != nil || len(a.Path) > 0 || a.Carrying != "" {
				return fmt.Errorf("expired agent %s still owns work", id)
			}
			continue
		}
		own := append([]grid.Vec2{a.Cell}, a.Path...)
		for _, p := range own {
			if prev, ok := reservedBy[p]; ok {
				return fmt.Errorf("cell %v claimed by agents %s and %s", p, prev, id)
			}
			reservedBy[p] = id
			c := s.cellAt(p)
			if c == nil || c.Status != CellReserved || c.Agent != id {
				return fmt.Errorf("agent %s expects %v reserved, found %+v", id, p, c)
			}
		}
		if (a.Operation == nil) != (len(a.Path) == 0) {
			return fmt.Errorf("agent %s: operation/path mismatch", id)
		}
		if a.Operation != nil {
			if a.State != AgentActive {
				return fmt.Errorf("agent %s has operation but is %s", id, a.State)
			}
			h := s.holds[a.Operation.Hold]
			if h == nil || h.Kind != HoldRoute || h.Holder != id {
				return fmt.Errorf("agent %s: route hold %s missing", id, a.Operation.Hold)
			}
			if !sameCells(h.Cells, a.Path) {
				return fmt.Errorf("agent %s: route hold %s cells %v != path %v", id, h.ID, h.Cells, a.Path)
			}
		}
		if a.Carrying != "" {
			it := s.items[a.Carrying]
			if it == nil || it.State != ItemInTransit || it.Agent != id {
				return fmt.Errorf("agent %s carries %s which disagrees", id, a.Carrying)
			}
			if a.State != AgentActive {
				return fmt.Errorf("agent %s carries but is %s", id, a.State)
			}
		}
	}

	for i := range s.cells {
		c := &s.cells[i]
		switch c.Status {
		case CellReserved:
			if reservedBy[c.Pos] != c.Agent || c.Agent == "" {
				return fmt.Errorf("cell %v reserved by %q has no owning agent", c.Pos, c.Agent)
			}
		case CellOccupied:
			it := s.items[c.Item]
			if it == nil || it.State != ItemStaged || it.Cell == nil || *it.Cell != c.Pos {
				return fmt.Errorf("cell %v occupied by %q which disagrees", c.Pos, c.Item)
			}
		default:
			if c.Item != "" || c.Agent != "" {
				return fmt.Errorf("cell %v is %s but names item %q agent %q", c.Pos, c.Status, c.Item, c.Agent)
			}
		}
		if c.Hold != "" {
			h := s.holds[c.Hold]
			if h == nil || h.Kind != HoldClaim || !containsCell(h.Cells, c.Pos) {
				return fmt.Errorf("cell %v overlay %s has no claim", c.Pos, c.Hold)
			}
		}
	}

	for _, id := range s.itemIDs() {
		it := s.items[id]
		switch it.State {
		case ItemStaged:
			if it.Cell == nil {
				return fmt.Errorf("staged item %s has no cell", id)
			}
			if c := s.cellAt(*it.Cell); c == nil || c.Status != CellOccupied || c.Item != id {
				return fmt.Errorf("staged item %s not on its cell", id)
			}
		case ItemInTransit:
			a := s.agents[it.Agent]
			if a == nil {
				return fmt.Errorf("item %s in transit with unknown agent %s", id, it.Agent)
			}
			picking := a.Operation != nil && a.Operation.Kind == OpPickup && a.Operation.Item == id
			if picking == (a.Carrying == id) {
				return fmt.Errorf("item %s in transit not owned by exactly one role of %s", id, a.ID)
			}
		case ItemDelivered:
			if it.Cell != nil || it.Agent != "" {
				return fmt.Errorf("delivered item %s still placed", id)
			}
		}
	}

	for _, id := range s.holdIDs() {
		h := s.holds[id]
		switch h.Kind {
		case HoldClaim:
			for _, p := range h.Cells {
				if c := s.cellAt(p); c == nil || c.Hold != id {
					return fmt.Errorf("claim %s cell %v lacks overlay", id, p)
				}
			}
		case HoldRoute:
			a := s.agents[h.Holder]
			if a == nil || a.Operation == nil || a.Operation.Hold != id {
				return fmt.Errorf("route hold %s has no running operation", id)
			}
		}
	}
	return nil
}

func sameCells(a, b []grid.Vec2) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsCell(cells []grid.Vec2, p grid.Vec2) bool {
	for _, q := range cells {
		if q == p {
			return true
		}
	}
	return false
}
