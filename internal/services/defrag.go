package services

import (
	"log"
	"sort"
	"time"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/routing"
)

type Relocation struct {
	Agent string
	To    grid.Vec2
}

// Compactor proposes relocations of idle agents. Proposals are only
// attempted, never forced: each becomes a Reposition route that must
// pass the usual commit checks.
type Compactor interface {
	Plan(st *facility.State, now time.Time) []Relocation
}

// HomeCompactor draws idle agents toward Home. Agents farthest from Home
// go first (ties by ID); each is sent to the free cell nearest Home that
// is strictly closer than where it stands, ties coordinate-ascending.
type HomeCompactor struct {
	Home     grid.Vec2
	MaxMoves int
}

func (c HomeCompactor) Plan(st *facility.State, now time.Time) []Relocation {
	if c.MaxMoves <= 0 {
		return nil
	}
	cfg := st.Config()
	dist := func(p grid.Vec2) int { return grid.Distance(p, c.Home, cfg.Adjacency) }

	var idle []facility.Agent
	for _, a := range st.Agents() {
		if a.State == facility.AgentIdle && a.Operation == nil && a.Carrying == "" {
			idle = append(idle, a)
		}
	}
	sort.SliceStable(idle, func(i, j int) bool {
		di, dj := dist(idle[i].Cell), dist(idle[j].Cell)
		if di != dj {
			return di > dj
		}
		return idle[i].ID < idle[j].ID
	})

	var free []grid.Vec2
	for _, p := range cfg.Bounds.Cells() {
		cell, _ := st.Cell(p)
		if cell.Status == facility.CellEmpty && cell.Hold == "" {
			free = append(free, p)
		}
	}
	sort.SliceStable(free, func(i, j int) bool { return dist(free[i]) < dist(free[j]) })

	taken := map[grid.Vec2]bool{}
	var out []Relocation
	for _, a := range idle {
		if len(out) >= c.MaxMoves {
			break
		}
		here := dist(a.Cell)
		for _, p := range free {
			if dist(p) >= here {
				break
			}
			if taken[p] {
				continue
			}
			taken[p] = true
			out = append(out, Relocation{Agent: a.ID, To: p})
			break
		}
	}
	return out
}

// Defragger consolidates idle agents according to its Compactor.
type Defragger struct {
	Enabled   bool
	Planner   *routing.Planner
	Compactor Compactor
	Logger    *log.Logger
}

func (d *Defragger) Name() string { return "defragger" }

func (d *Defragger) Tick(st *facility.State, now time.Time) Report {
	var r Report
	if !d.Enabled {
		return r
	}
	for _, m := range d.Compactor.Plan(st, now) {
		_, err := d.Planner.Commit(st, routing.Request{Agent: m.Agent, Kind: facility.OpReposition, Goal: m.To}, now)
		if err != nil {
			r.Failures++
			d.Logger.Printf("defragger: agent=%s to=%v: %v", m.Agent, m.To, err)
			continue
		}
		r.Actions++
	}
	return r
}
