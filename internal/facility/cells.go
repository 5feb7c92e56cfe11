package facility

import (
	"fmt"
	"time"

	"supersorting.ai/internal/grid"
)

// BlockCells marks Empty, unheld cells as static obstacles.
func (s *State) BlockCells(cells []grid.Vec2, now time.Time) error {
	if len(cells) == 0 {
		return fmt.Errorf("%w: no cells", ErrInvalidArgument)
	}
	for _, p := range cells {
		c := s.cellAt(p)
		if c == nil {
			return fmt.Errorf("%w: %v", ErrOutOfBounds, p)
		}
		if c.Status != CellEmpty || c.Hold != "" {
			return fmt.Errorf("%w: %v is %s", ErrCellUnavailable, p, c.Status)
		}
	}
	for _, p := range cells {
		s.cellAt(p).Status = CellBlocked
	}
	s.emit(now, Event{Kind: EventCellsBlocked, Cells: cloneCells(cells)})
	return nil
}

func (s *State) UnblockCells(cells []grid.Vec2, now time.Time) error {
	if len(cells) == 0 {
		return fmt.Errorf("%w: no cells", ErrInvalidArgument)
	}
	for _, p := range cells {
		c := s.cellAt(p)
		if c == nil {
			return fmt.Errorf("%w: %v", ErrOutOfBounds, p)
		}
		if c.Status != CellBlocked {
			return fmt.Errorf("%w: %v is %s", ErrInvalidArgument, p, c.Status)
		}
	}
	for _, p := range cells {
		s.cellAt(p).Status = CellEmpty
	}
	s.emit(now, Event{Kind: EventCellsUnblocked, Cells: cloneCells(cells)})
	return nil
}

// BlockedCells lists the Blocked cells in coordinate order.
func (s *State) BlockedCells() []grid.Vec2 {
	var out []grid.Vec2
	for i := range s.cells {
		if s.cells[i].Status == CellBlocked {
			out = append(out, s.cells[i].Pos)
		}
	}
	return out
}
