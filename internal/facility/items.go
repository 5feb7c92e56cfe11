package facility

import (
	"fmt"
	"strings"
	"time"

	"supersorting.ai/internal/grid"
)

// StageItem places a new item on cell. holder may name the owner of a
// claim covering the cell; that cell is then consumed from the claim.
// dropoff, when set, is where the item has to be delivered.
func (s *State) StageItem(id string, cell grid.Vec2, dropoff *grid.Vec2, holder string, now time.Time) (Item, error) {
	if strings.TrimSpace(id) == "" {
		return Item{}, fmt.Errorf("%w: empty item id", ErrInvalidArgument)
	}
	if _, ok := s.items[id]; ok {
		return Item{}, fmt.Errorf("%w: item %s", ErrDuplicateID, id)
	}
	c := s.cellAt(cell)
	if c == nil {
		return Item{}, fmt.Errorf("%w: %v", ErrOutOfBounds, cell)
	}
	if c.Status != CellEmpty {
		return Item{}, fmt.Errorf("%w: %v is %s", ErrCellUnavailable, cell, c.Status)
	}
	if c.Hold != "" && (holder == "" || !s.claimedBy(c, holder, now)) {
		return Item{}, fmt.Errorf("%w: %v held by %s", ErrCellUnavailable, cell, c.Hold)
	}
	var drop *grid.Vec2
	if dropoff != nil {
		d := s.cellAt(*dropoff)
		if d == nil {
			return Item{}, fmt.Errorf("%w: dropoff %v", ErrOutOfBounds, *dropoff)
		}
		if d.Status == CellBlocked {
			return Item{}, fmt.Errorf("%w: dropoff %v is blocked", ErrCellUnavailable, *dropoff)
		}
		if *dropoff == cell {
			return Item{}, fmt.Errorf("%w: dropoff equals staging cell", ErrInvalidArgument)
		}
		v := *dropoff
		drop = &v
	}

	if c.Hold != "" {
		s.consumeClaimCell(s.holds[c.Hold], cell, now)
	}
	pos := cell
	it := &Item{ID: id, State: ItemStaged, Cell: &pos, Dropoff: drop, StagedAt: now}
	s.items[id] = it
	c.Status = CellOccupied
	c.Item = id
	s.emit(now, Event{Kind: EventItemStaged, Item: id, Cells: []grid.Vec2{cell}})
	return it.clone(), nil
}

func (s *State) deliver(it *Item, agent string, now time.Time) {
	it.State = ItemDelivered
	it.Agent = ""
	it.Cell = nil
	it.DeliveredAt = now
	s.emit(now, Event{Kind: EventItemDelivered, Agent: agent, Item: it.ID})
}
