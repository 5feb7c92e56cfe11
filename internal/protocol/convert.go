package protocol

import (
	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/tick"
)

func NewAgentStatus(a facility.Agent) AgentStatus {
	out := AgentStatus{
		AgentID:       a.ID,
		State:         a.State.String(),
		Cell:          a.Cell,
		Carrying:      a.Carrying,
		LastHeartbeat: a.LastHeartbeat,
	}
	if a.Operation != nil {
		op := NewOperationInfo(*a.Operation, a.Path)
		out.Operation = &op
	}
	return out
}

// NewOperationInfo describes op with remaining as the cells still ahead.
func NewOperationInfo(op facility.Operation, remaining []grid.Vec2) OperationInfo {
	rem := make([]grid.Vec2, len(remaining))
	copy(rem, remaining)
	return OperationInfo{
		ID:        op.ID,
		Kind:      op.Kind.String(),
		Item:      op.Item,
		Goal:      op.Goal,
		Remaining: rem,
		Hold:      op.Hold,
	}
}

func NewHoldInfo(h facility.Hold) HoldInfo {
	return HoldInfo{
		ID:        h.ID,
		Holder:    h.Holder,
		Kind:      h.Kind.String(),
		Cells:     h.Cells,
		Expiry:    h.Expiry,
		CreatedAt: h.CreatedAt,
	}
}

func NewItemInfo(it facility.Item) ItemInfo {
	out := ItemInfo{
		ID:       it.ID,
		State:    it.State.String(),
		Cell:     it.Cell,
		Agent:    it.Agent,
		Dropoff:  it.Dropoff,
		StagedAt: it.StagedAt,
	}
	if !it.DeliveredAt.IsZero() {
		at := it.DeliveredAt
		out.DeliveredAt = &at
	}
	return out
}

func NewAlertInfo(a facility.Alert) AlertInfo {
	return AlertInfo{AgentID: a.Agent, Description: a.Description, At: a.At}
}

func NewEventInfo(e facility.Event) EventInfo {
	return EventInfo{
		Seq:       e.Seq,
		At:        e.At,
		Kind:      string(e.Kind),
		Agent:     e.Agent,
		Item:      e.Item,
		Hold:      e.Hold,
		Operation: e.Operation,
		Cells:     e.Cells,
		Detail:    e.Detail,
	}
}

func NewTickSummary(e tick.Entry) TickSummary {
	out := TickSummary{Tick: e.Tick, At: e.At, StepMS: e.StepMS, Digest: e.Digest}
	for _, r := range e.Reports {
		out.Actions += r.Actions
		out.Failures += r.Failures
	}
	return out
}

func NewTickFrame(e tick.Entry) TickFrame {
	return TickFrame{
		Type:            TypeTick,
		ProtocolVersion: Version,
		Tick:            NewTickSummary(e),
		Agents:          e.Agents,
		Items:           e.Items,
		Holds:           e.Holds,
	}
}

func NewEventsFrame(events []facility.Event) EventsFrame {
	out := EventsFrame{Type: TypeEvents, ProtocolVersion: Version, Events: make([]EventInfo, 0, len(events))}
	for _, e := range events {
		out.Events = append(out.Events, NewEventInfo(e))
	}
	return out
}
