package main

import (
	"context"
	"io"
	"log"
	"math/rand"
	"net/http/httptest"
	"testing"
	"time"

	"supersorting.ai/internal/client"
	"supersorting.ai/internal/config"
	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/httpapi"
	"supersorting.ai/internal/protocol"
	"supersorting.ai/internal/routing"
	"supersorting.ai/internal/services"
	"supersorting.ai/internal/tick"
)

const testKey = "8a1f3e5c-7b9d-4f2a-9c6e-1d3b5a7f9e02"

func TestSimAgentDeliversItem(t *testing.T) {
	cfg := config.Config{
		Auth: config.AuthConfig{APIKeys: []string{testKey}},
		Grid: config.GridConfig{Width: 4, Height: 4, Adjacency: 4, MaxPathLength: 32},
		Expiry: config.ExpiryConfig{
			AgentHeartbeat: config.Duration(time.Minute),
			RouteHold:      config.Duration(time.Minute),
			DefaultHold:    config.Duration(time.Minute),
		},
	}
	st, err := facility.NewState(cfg.Facility())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	store := facility.NewStore(st, facility.WithInvariantChecks(true))
	srv := httptest.NewServer(httpapi.New(httpapi.Options{Store: store, Config: cfg}).Handler())
	defer srv.Close()

	quiet := log.New(io.Discard, "", 0)
	sched := tick.New(store, services.Chain(services.ChainConfig{
		Planner:          routing.NewPlanner(cfg.Pathfinding()),
		Logger:           quiet,
		HeartbeatTimeout: cfg.Expiry.AgentHeartbeat.D(),
	}))

	ctx := context.Background()
	c := client.New(srv.URL, testKey)
	a, err := register(ctx, c, "sim-01", 4, 4, rand.New(rand.NewSource(7)), quiet)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	drop := grid.Vec2{X: 3, Y: 3}
	pick := grid.Vec2{X: 3, Y: 0}
	if got, _ := c.Agents(ctx, ""); len(got) == 1 && (got[0].Cell == pick || got[0].Cell == drop) {
		pick, drop = grid.Vec2{X: 0, Y: 3}, grid.Vec2{X: 1, Y: 1}
	}
	if _, err := c.StageItem(ctx, protocol.StageItemRequest{ItemID: "tote-1", Cell: pick, Dropoff: &drop}); err != nil {
		t.Fatalf("stage: %v", err)
	}

	delivered := false
	for i := 0; i < 40 && !delivered; i++ {
		sched.Step(time.Now())
		if err := a.step(ctx); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		items, err := c.Items(ctx, "delivered")
		if err != nil {
			t.Fatalf("items: %v", err)
		}
		delivered = len(items) == 1
	}
	if !delivered {
		t.Fatalf("item not delivered; agent took %d steps", a.steps)
	}
	if a.completed != 2 {
		t.Fatalf("completed=%d want 2 (pickup, deliver)", a.completed)
	}
	agents, err := c.Agents(ctx, "idle")
	if err != nil || len(agents) != 1 || agents[0].Cell != drop {
		t.Fatalf("agent after delivery: %+v err=%v", agents, err)
	}
}
