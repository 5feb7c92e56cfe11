package services

import (
	"log"
	"time"

	"supersorting.ai/internal/facility"
)

// AgentExpiration expires agents whose last heartbeat is older than
// Timeout. Already expired agents are left alone, so repeated passes at
// the same now change nothing.
type AgentExpiration struct {
	Timeout time.Duration
	Logger  *log.Logger
}

func (e *AgentExpiration) Name() string { return "agent_expiration" }

func (e *AgentExpiration) Tick(st *facility.State, now time.Time) Report {
	var r Report
	for _, a := range st.Agents() {
		if a.State == facility.AgentExpired || now.Sub(a.LastHeartbeat) <= e.Timeout {
			continue
		}
		if err := st.ExpireAgent(a.ID, now); err != nil {
			r.Failures++
			e.Logger.Printf("agent_expiration: agent=%s: %v", a.ID, err)
			continue
		}
		e.Logger.Printf("agent_expiration: expired agent=%s silent=%s", a.ID, now.Sub(a.LastHeartbeat))
		r.Actions++
	}
	return r
}

// HoldExpiration removes every hold whose expiry has been reached, in
// hold ID order.
type HoldExpiration struct {
	Logger *log.Logger
}

func (e *HoldExpiration) Name() string { return "hold_expiration" }

func (e *HoldExpiration) Tick(st *facility.State, now time.Time) Report {
	var r Report
	for _, h := range st.LapsedHolds(now) {
		if err := st.ExpireHold(h.ID, now); err != nil {
			r.Failures++
			e.Logger.Printf("hold_expiration: hold=%s: %v", h.ID, err)
			continue
		}
		r.Actions++
	}
	return r
}
