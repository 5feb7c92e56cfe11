package facility

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/pathfinding"
)

type countingSink struct {
	mu sync.Mutex
	n  int
}

func (c *countingSink) PublishEvents(evs []Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n += len(evs)
}

// Many writers and readers hammer one store; the post-update invariant
// check panics on any partial mutation and readers verify they never see
// one either.
func TestStore_ConcurrentMutualExclusion(t *testing.T) {
	st := newTestState(t, 8, 8, grid.Four)
	sink := &countingSink{}
	store := NewStore(st, WithEventSink(sink), WithInvariantChecks(true))

	const workers = 8
	const rounds = 200
	var clock atomic.Int64
	now := func() time.Time { return t0.Add(time.Duration(clock.Add(1)) * time.Millisecond) }

	var wg sync.WaitGroup
	var violations atomic.Int32
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w)))
			id := fmt.Sprintf("a%d", w)
			for r := 0; r < rounds; r++ {
				at := now()
				_ = store.Update(func(st *State) error {
					a, ok := st.Agent(id)
					if !ok || a.State == AgentExpired {
						if ok {
							_ = st.RemoveAgent(id, at)
						}
						cell := grid.Vec2{X: rng.Intn(8), Y: rng.Intn(8)}
						if _, err := st.RegisterAgent(id, cell, at); err != nil {
							return err
						}
						_, err := st.Heartbeat(id, at)
						return err
					}
					switch rng.Intn(6) {
					case 0:
						return st.ExpireAgent(id, at)
					case 1:
						goal := grid.Vec2{X: rng.Intn(8), Y: rng.Intn(8)}
						pcfg := st.PathfindingConfig(64)
						path, err := pathfinding.Find(st.Navigator(at), pcfg, pathfinding.Query{Start: a.Cell, Goal: goal, Agent: id})
						if err != nil || len(path) < 2 {
							return err
						}
						_, err = st.CommitRoute(RouteRequest{Agent: id, Kind: OpReposition, Path: path}, at)
						return err
					case 2:
						if len(a.Path) > 0 {
							_, err := st.AdvanceAgent(id, a.Path[0], at)
							return err
						}
					case 3:
						if a.Operation != nil {
							return st.AbortRoute(id, at)
						}
					case 4:
						cell := grid.Vec2{X: rng.Intn(8), Y: rng.Intn(8)}
						_, err := st.CreateHold(id, []grid.Vec2{cell}, at.Add(time.Duration(rng.Intn(20))*time.Millisecond+time.Millisecond), at)
						return err
					default:
						for _, h := range st.LapsedHolds(at) {
							if err := st.ExpireHold(h.ID, at); err != nil {
								return err
							}
						}
					}
					return nil
				})
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_ = store.View(func(st *State) error {
					if err := st.CheckInvariants(); err != nil {
						violations.Add(1)
					}
					return nil
				})
			}
		}()
	}
	wg.Wait()

	if n := violations.Load(); n != 0 {
		t.Fatalf("readers observed %d inconsistent states", n)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.n == 0 {
		t.Fatalf("no events published")
	}
}

func TestStore_InvariantCheckPanics(t *testing.T) {
	st := newTestState(t, 2, 2, grid.Four)
	store := NewStore(st, WithInvariantChecks(true))
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on corrupted state")
		}
		// The lock must have been released by the panic.
		_ = store.View(func(*State) error { return nil })
	}()
	_ = store.Update(func(st *State) error {
		st.cellAt(v(0, 0)).Status = CellReserved
		return nil
	})
}
