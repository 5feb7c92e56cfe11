package services

import (
	"log"
	"sort"
	"time"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/routing"
)

// Candidates lists, best first, the idle agents that may pick up Item.
type Candidates struct {
	Item   string
	Agents []string
}

// Matcher ranks Idle agents for each Staged item. Items are tried in the
// returned order; an agent is consumed only by a committed route, so an
// item that cannot be routed leaves its agents to the items behind it.
type Matcher interface {
	Match(st *facility.State, now time.Time) []Candidates
}

// NearestIdle takes items oldest first (StagedAt, then ID) and ranks
// every idle agent by grid distance to the item, ties broken by agent ID.
type NearestIdle struct{}

func (NearestIdle) Match(st *facility.State, now time.Time) []Candidates {
	adj := st.Config().Adjacency
	var pool []facility.Agent
	for _, a := range st.Agents() {
		if a.State == facility.AgentIdle && a.Operation == nil && a.Carrying == "" {
			pool = append(pool, a)
		}
	}
	if len(pool) == 0 {
		return nil
	}
	var out []Candidates
	for _, it := range st.StagedItems() {
		ranked := append([]facility.Agent(nil), pool...)
		sort.SliceStable(ranked, func(i, j int) bool {
			di := grid.Distance(ranked[i].Cell, *it.Cell, adj)
			dj := grid.Distance(ranked[j].Cell, *it.Cell, adj)
			if di != dj {
				return di < dj
			}
			return ranked[i].ID < ranked[j].ID
		})
		ids := make([]string, len(ranked))
		for i, a := range ranked {
			ids[i] = a.ID
		}
		out = append(out, Candidates{Item: it.ID, Agents: ids})
	}
	return out
}

// Scanner routes carrying agents to their dropoffs and assigns Staged
// items to Idle agents.
type Scanner struct {
	Planner *routing.Planner
	Matcher Matcher
	Logger  *log.Logger
}

func (s *Scanner) Name() string { return "scanner" }

func (s *Scanner) Tick(st *facility.State, now time.Time) Report {
	var r Report

	for _, a := range st.Agents() {
		if a.State != facility.AgentActive || a.Carrying == "" || a.Operation != nil {
			continue
		}
		it, ok := st.Item(a.Carrying)
		if !ok || it.Dropoff == nil {
			continue
		}
		_, err := s.Planner.Commit(st, routing.Request{Agent: a.ID, Kind: facility.OpDeliver, Item: it.ID, Goal: *it.Dropoff}, now)
		if err != nil {
			r.Failures++
			s.Logger.Printf("scanner: deliver agent=%s item=%s: %v", a.ID, it.ID, err)
			continue
		}
		r.Actions++
	}

	// Failures counts items left unassigned after every agent tried failed.
	used := make(map[string]bool)
	for _, c := range s.Matcher.Match(st, now) {
		it, ok := st.Item(c.Item)
		if !ok || it.State != facility.ItemStaged || it.Cell == nil {
			continue
		}
		tried, assigned := 0, false
		for _, agent := range c.Agents {
			if used[agent] {
				continue
			}
			tried++
			_, err := s.Planner.Commit(st, routing.Request{Agent: agent, Kind: facility.OpPickup, Item: it.ID, Goal: *it.Cell}, now)
			if err != nil {
				s.Logger.Printf("scanner: pickup agent=%s item=%s: %v", agent, it.ID, err)
				continue
			}
			used[agent] = true
			assigned = true
			r.Actions++
			break
		}
		if tried > 0 && !assigned {
			r.Failures++
		}
	}
	return r
}
