package tick

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/pathfinding"
	"supersorting.ai/internal/routing"
	"supersorting.ai/internal/services"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type memTickLog struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *memTickLog) WriteTick(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func newScheduler(t *testing.T, tl TickLogger, opts ...Option) (*Scheduler, *facility.Store) {
	t.Helper()
	st, err := facility.NewState(facility.Config{Bounds: grid.Bounds{Width: 3, Height: 3}, Adjacency: grid.Four, RouteTTL: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	store := facility.NewStore(st, facility.WithInvariantChecks(true))
	chain := services.Chain(services.ChainConfig{
		Planner:          routing.NewPlanner(pathfinding.Config{Width: 3, Height: 3, Adjacency: grid.Four, MaxLength: 16}),
		HeartbeatTimeout: 3 * time.Second,
	})
	opts = append(opts, WithTickLogger(tl))
	return New(store, chain, opts...), store
}

func TestStep_RunsChainAndLogs(t *testing.T) {
	tl := &memTickLog{}
	s, store := newScheduler(t, tl)
	err := store.Update(func(st *facility.State) error {
		if _, err := st.RegisterAgent("a1", grid.Vec2{X: 2, Y: 2}, t0); err != nil {
			return err
		}
		if _, err := st.Heartbeat("a1", t0); err != nil {
			return err
		}
		_, err := st.StageItem("i1", grid.Vec2{X: 0, Y: 0}, nil, "", t0)
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	e := s.Step(t0)
	if e.Tick != 1 || len(e.Reports) != 4 {
		t.Fatalf("entry=%+v", e)
	}
	if e.Reports[0].Service != "scanner" || e.Reports[0].Actions != 1 {
		t.Fatalf("scanner report=%+v", e.Reports[0])
	}
	if e.Agents != 1 || e.Items != 1 || e.Holds != 1 || e.Digest == "" {
		t.Fatalf("entry summary=%+v", e)
	}

	// No heartbeat and no progress: the agent expires, the route goes.
	e = s.Step(t0.Add(4 * time.Second))
	if e.Reports[1].Service != "agent_expiration" || e.Reports[1].Actions != 1 {
		t.Fatalf("expiration report=%+v", e.Reports[1])
	}
	m := s.Metrics()
	if m.Tick != 2 || m.ActionsTotal != 2 || m.Counts.AgentsExpired != 1 || m.Counts.ItemsStaged != 1 {
		t.Fatalf("metrics=%+v", m)
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if len(tl.entries) != 2 || tl.entries[1].Tick != 2 {
		t.Fatalf("tick log=%+v", tl.entries)
	}
}

func TestStep_Serialized(t *testing.T) {
	tl := &memTickLog{}
	s, _ := newScheduler(t, tl)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Step(t0.Add(time.Duration(i) * time.Second))
		}(i)
	}
	wg.Wait()
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if len(tl.entries) != 20 {
		t.Fatalf("entries=%d", len(tl.entries))
	}
	for i, e := range tl.entries {
		if e.Tick != uint64(i+1) {
			t.Fatalf("entry %d has tick %d", i, e.Tick)
		}
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	tl := &memTickLog{}
	s, _ := newScheduler(t, tl, WithClock(func() time.Time { return t0 }))
	ctx, cancel := context.WithTimeout(context.Background(), Period+500*time.Millisecond)
	defer cancel()
	err := s.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run: %v", err)
	}
	if s.Metrics().Tick < 1 {
		t.Fatalf("no tick ran")
	}
}
