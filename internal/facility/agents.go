package facility

import (
	"fmt"
	"strings"
	"time"

	"supersorting.ai/internal/grid"
)

// RegisterAgent places a new agent on cell. The agent starts Registered
// and becomes Idle on its first heartbeat.
func (s *State) RegisterAgent(id string, cell grid.Vec2, now time.Time) (Agent, error) {
	if strings.TrimSpace(id) == "" {
		return Agent{}, fmt.Errorf("%w: empty agent id", ErrInvalidArgument)
	}
	if _, ok := s.agents[id]; ok {
		return Agent{}, fmt.Errorf("%w: agent %s", ErrDuplicateID, id)
	}
	c := s.cellAt(cell)
	if c == nil {
		return Agent{}, fmt.Errorf("%w: %v", ErrOutOfBounds, cell)
	}
	if c.Status != CellEmpty || !s.claimedBy(c, id, now) {
		return Agent{}, fmt.Errorf("%w: %v is %s", ErrCellUnavailable, cell, c.Status)
	}

	a := &Agent{
		ID:            id,
		State:         AgentRegistered,
		Cell:          cell,
		LastHeartbeat: now,
		RegisteredAt:  now,
	}
	s.agents[id] = a
	c.Status = CellReserved
	c.Agent = id
	c.Expiry = time.Time{}
	s.emit(now, Event{Kind: EventAgentRegistered, Agent: id, Cells: []grid.Vec2{cell}})
	return a.clone(), nil
}

func (s *State) Heartbeat(id string, now time.Time) (Agent, error) {
	a, err := s.liveAgent(id)
	if err != nil {
		return Agent{}, err
	}
	a.LastHeartbeat = now
	if a.State == AgentRegistered {
		a.State = AgentIdle
		s.emit(now, Event{Kind: EventAgentReady, Agent: id})
	}
	return a.clone(), nil
}

// ExpireAgent releases everything the agent holds and keeps its record
// as Expired. Any route is aborted and a carried item is dropped,
// Staged, on the agent's cell.
func (s *State) ExpireAgent(id string, now time.Time) error {
	a, err := s.liveAgent(id)
	if err != nil {
		return err
	}
	s.evict(a, now)
	a.State = AgentExpired
	s.emit(now, Event{Kind: EventAgentExpired, Agent: id, Cells: []grid.Vec2{a.Cell}})
	return nil
}

// RemoveAgent performs the same cleanup as ExpireAgent and then deletes
// the record. Expired agents may be removed.
func (s *State) RemoveAgent(id string, now time.Time) error {
	a := s.agents[id]
	if a == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	if a.State != AgentExpired {
		s.evict(a, now)
	}
	delete(s.agents, id)
	s.emit(now, Event{Kind: EventAgentRemoved, Agent: id})
	return nil
}

func (s *State) evict(a *Agent, now time.Time) {
	s.abortRoute(a, now, "agent evicted")

	c := s.cellAt(a.Cell)
	if a.Carrying != "" {
		it := s.items[a.Carrying]
		pos := a.Cell
		it.State = ItemStaged
		it.Cell = &pos
		it.Agent = ""
		c.Status = CellOccupied
		c.Item = it.ID
		c.Agent = ""
		c.Expiry = time.Time{}
		a.Carrying = ""
		s.emit(now, Event{Kind: EventItemDropped, Agent: a.ID, Item: it.ID, Cells: []grid.Vec2{pos}})
	} else if c.Status == CellReserved && c.Agent == a.ID {
		c.Status = CellEmpty
		c.Agent = ""
		c.Expiry = time.Time{}
	}

	for _, id := range s.holdIDs() {
		h := s.holds[id]
		if h.Kind == HoldClaim && h.Holder == a.ID {
			s.dropClaim(h)
			s.emit(now, Event{Kind: EventHoldReleased, Agent: a.ID, Hold: h.ID, Cells: cloneCells(h.Cells), Detail: "holder evicted"})
		}
	}
}

// RecordAlert keeps the most recent alerts reported by agents.
func (s *State) RecordAlert(agent, description string, now time.Time) error {
	if _, err := s.liveAgent(agent); err != nil {
		return err
	}
	s.alerts = append(s.alerts, Alert{Agent: agent, Description: description, At: now})
	if over := len(s.alerts) - maxAlerts; over > 0 {
		s.alerts = append(s.alerts[:0:0], s.alerts[over:]...)
	}
	s.emit(now, Event{Kind: EventAgentAlert, Agent: agent, Detail: description})
	return nil
}
