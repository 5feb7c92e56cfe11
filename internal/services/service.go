// Package services holds the periodic maintenance passes run once per
// tick, in a fixed order, under the store lock.
package services

import (
	"io"
	"log"
	"time"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/routing"
)

// Service is one maintenance pass. Tick runs with exclusive access to
// the state; a failure on one entity is counted and never stops the pass.
type Service interface {
	Name() string
	Tick(st *facility.State, now time.Time) Report
}

type Report struct {
	Service  string `json:"service"`
	Actions  int    `json:"actions"`
	Failures int    `json:"failures"`
}

type DefragConfig struct {
	Enabled  bool
	Home     grid.Vec2
	MaxMoves int
}

type ChainConfig struct {
	Planner          *routing.Planner
	Logger           *log.Logger
	HeartbeatTimeout time.Duration
	Defrag           DefragConfig

	// Matcher and Compactor default to NearestIdle and HomeCompactor.
	Matcher   Matcher
	Compactor Compactor
}

// Chain returns the services in their required order: Scanner,
// Agent-Expiration, Defragger, Hold-Expiration. Expiration runs after
// scanning, so an agent that lapses this tick may still have been
// assigned, and its route is then undone in the same tick.
func Chain(cfg ChainConfig) []Service {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	matcher := cfg.Matcher
	if matcher == nil {
		matcher = NearestIdle{}
	}
	compactor := cfg.Compactor
	if compactor == nil {
		compactor = HomeCompactor{Home: cfg.Defrag.Home, MaxMoves: cfg.Defrag.MaxMoves}
	}
	return []Service{
		&Scanner{Planner: cfg.Planner, Matcher: matcher, Logger: logger},
		&AgentExpiration{Timeout: cfg.HeartbeatTimeout, Logger: logger},
		&Defragger{Enabled: cfg.Defrag.Enabled, Planner: cfg.Planner, Compactor: compactor, Logger: logger},
		&HoldExpiration{Logger: logger},
	}
}

// RunChain runs every service in order against st with a single now.
func RunChain(chain []Service, st *facility.State, now time.Time) []Report {
	reports := make([]Report, 0, len(chain))
	for _, svc := range chain {
		r := svc.Tick(st, now)
		r.Service = svc.Name()
		reports = append(reports, r)
	}
	return reports
}
