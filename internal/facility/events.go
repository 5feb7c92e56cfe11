package facility

import (
	"time"

	"supersorting.ai/internal/grid"
)

type EventKind string

const (
	EventAgentRegistered EventKind = "AGENT_REGISTERED"
	EventAgentReady      EventKind = "AGENT_READY"
	EventAgentMoved      EventKind = "AGENT_MOVED"
	EventAgentExpired    EventKind = "AGENT_EXPIRED"
	EventAgentRemoved    EventKind = "AGENT_REMOVED"
	EventAgentAlert      EventKind = "AGENT_ALERT"

	EventItemStaged    EventKind = "ITEM_STAGED"
	EventItemPickedUp  EventKind = "ITEM_PICKED_UP"
	EventItemDelivered EventKind = "ITEM_DELIVERED"
	EventItemDropped   EventKind = "ITEM_DROPPED"

	EventRouteCommitted EventKind = "ROUTE_COMMITTED"
	EventRouteAborted   EventKind = "ROUTE_ABORTED"
	EventRouteCompleted EventKind = "ROUTE_COMPLETED"

	EventHoldCreated  EventKind = "HOLD_CREATED"
	EventHoldReleased EventKind = "HOLD_RELEASED"
	EventHoldExpired  EventKind = "HOLD_EXPIRED"

	EventCellsBlocked   EventKind = "CELLS_BLOCKED"
	EventCellsUnblocked EventKind = "CELLS_UNBLOCKED"
)

// Event records one successful state mutation. Seq is strictly
// increasing for the life of a State.
type Event struct {
	Seq       uint64      `json:"seq"`
	At        time.Time   `json:"at"`
	Kind      EventKind   `json:"kind"`
	Agent     string      `json:"agent,omitempty"`
	Item      string      `json:"item,omitempty"`
	Hold      string      `json:"hold,omitempty"`
	Operation string      `json:"operation,omitempty"`
	Cells     []grid.Vec2 `json:"cells,omitempty"`
	Detail    string      `json:"detail,omitempty"`
}

func (s *State) emit(now time.Time, e Event) {
	s.eventSeq++
	e.Seq = s.eventSeq
	e.At = now
	s.events = append(s.events, e)
}

// DrainEvents returns and clears the events appended since the last drain.
func (s *State) DrainEvents() []Event {
	out := s.events
	s.events = nil
	return out
}
