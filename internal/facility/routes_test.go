package facility

import (
	"errors"
	"testing"
	"time"

	"supersorting.ai/internal/grid"
)

func TestCommitRoute_PickupAndDeliver(t *testing.T) {
	st := newTestState(t, 3, 3, grid.Four)
	idleAgent(t, st, "a1", v(0, 0))
	drop := v(2, 2)
	if _, err := st.StageItem("i1", v(0, 2), &drop, "", t0); err != nil {
		t.Fatalf("stage: %v", err)
	}

	op, err := st.CommitRoute(RouteRequest{Agent: "a1", Kind: OpPickup, Item: "i1", Path: []grid.Vec2{v(0, 0), v(0, 1), v(0, 2)}}, t0)
	if err != nil {
		t.Fatalf("commit pickup: %v", err)
	}
	checkInvariants(t, st)
	it, _ := st.Item("i1")
	if it.State != ItemInTransit || it.Agent != "a1" || it.Cell != nil {
		t.Fatalf("item after commit: %+v", it)
	}
	for _, p := range []grid.Vec2{v(0, 0), v(0, 1), v(0, 2)} {
		c, _ := st.Cell(p)
		if c.Status != CellReserved || c.Agent != "a1" {
			t.Fatalf("%v not reserved: %+v", p, c)
		}
	}
	h, ok := st.Hold(op.Hold)
	if !ok || h.Kind != HoldRoute || len(h.Cells) != 2 {
		t.Fatalf("route hold: %+v", h)
	}

	if _, err := st.AdvanceAgent("a1", v(0, 2), t0.Add(time.Second)); !errors.Is(err, ErrUnexpectedStep) {
		t.Fatalf("skipping a cell: %v", err)
	}
	if _, err := st.AdvanceAgent("a1", v(0, 1), t0.Add(time.Second)); err != nil {
		t.Fatalf("advance: %v", err)
	}
	checkInvariants(t, st)
	if c, _ := st.Cell(v(0, 0)); c.Status != CellEmpty {
		t.Fatalf("left cell still %s", c.Status)
	}
	h, _ = st.Hold(op.Hold)
	if len(h.Cells) != 1 || !h.Expiry.Equal(t0.Add(11*time.Second)) {
		t.Fatalf("route hold not refreshed: %+v", h)
	}

	a, err := st.AdvanceAgent("a1", v(0, 2), t0.Add(2*time.Second))
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	checkInvariants(t, st)
	if a.Operation != nil || a.Carrying != "i1" || a.State != AgentActive {
		t.Fatalf("after pickup: %+v", a)
	}
	if _, ok := st.Hold(op.Hold); ok {
		t.Fatalf("route hold outlived its route")
	}

	if _, err := st.CommitRoute(RouteRequest{Agent: "a1", Kind: OpDeliver, Item: "i1", Path: []grid.Vec2{v(0, 2), v(1, 2), v(1, 1)}}, t0); !errors.Is(err, ErrInvalidRoute) {
		t.Fatalf("deliver to wrong goal: %v", err)
	}
	dop, err := st.CommitRoute(RouteRequest{Agent: "a1", Kind: OpDeliver, Item: "i1", Path: []grid.Vec2{v(0, 2), v(1, 2), v(2, 2)}}, t0.Add(3*time.Second))
	if err != nil {
		t.Fatalf("commit deliver: %v", err)
	}
	if _, err := st.CompleteOperation("a1", "OP999999", t0); !errors.Is(err, ErrStaleRoute) {
		t.Fatalf("wrong op id: %v", err)
	}
	a, err = st.CompleteOperation("a1", dop.ID, t0.Add(4*time.Second))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	checkInvariants(t, st)
	if a.State != AgentIdle || a.Cell != v(2, 2) || a.Carrying != "" {
		t.Fatalf("after deliver: %+v", a)
	}
	it, _ = st.Item("i1")
	if it.State != ItemDelivered || it.Cell != nil || !it.DeliveredAt.Equal(t0.Add(4*time.Second)) {
		t.Fatalf("item after deliver: %+v", it)
	}
	if n := st.Counts().CellsReserved; n != 1 {
		t.Fatalf("reserved cells=%d want 1", n)
	}
}

func TestCommitRoute_PickupWithoutDropoffDelivers(t *testing.T) {
	st := newTestState(t, 2, 1, grid.Four)
	idleAgent(t, st, "a1", v(0, 0))
	if _, err := st.StageItem("i1", v(1, 0), nil, "", t0); err != nil {
		t.Fatalf("stage: %v", err)
	}
	op, err := st.CommitRoute(RouteRequest{Agent: "a1", Kind: OpPickup, Item: "i1", Path: []grid.Vec2{v(0, 0), v(1, 0)}}, t0)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	a, err := st.CompleteOperation("a1", op.ID, t0)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	it, _ := st.Item("i1")
	if it.State != ItemDelivered || a.State != AgentIdle || a.Carrying != "" {
		t.Fatalf("item=%+v agent=%+v", it, a)
	}
	checkInvariants(t, st)
}

// A route that collides anywhere with current state is rejected with no
// trace: same digest, no events, no reservations.
func TestCommitRoute_AtomicRejection(t *testing.T) {
	st := newTestState(t, 4, 1, grid.Four)
	idleAgent(t, st, "a1", v(0, 0))
	idleAgent(t, st, "a2", v(3, 0))
	st.DrainEvents()
	before := st.Digest()

	cases := []RouteRequest{
		{Agent: "a1", Kind: OpReposition, Path: []grid.Vec2{v(0, 0), v(1, 0), v(2, 0), v(3, 0)}},
		{Agent: "a1", Kind: OpReposition, Path: []grid.Vec2{v(1, 0), v(2, 0)}},
		{Agent: "a1", Kind: OpReposition, Path: []grid.Vec2{v(0, 0), v(2, 0)}},
		{Agent: "a1", Kind: OpReposition, Path: []grid.Vec2{v(0, 0)}},
		{Agent: "a1", Kind: OpPickup, Item: "ghost", Path: []grid.Vec2{v(0, 0), v(1, 0)}},
		{Agent: "a1", Kind: OpDeliver, Item: "ghost", Path: []grid.Vec2{v(0, 0), v(1, 0)}},
	}
	for i, req := range cases {
		if _, err := st.CommitRoute(req, t0); err == nil {
			t.Fatalf("case %d: expected rejection", i)
		}
		if got := st.Digest(); got != before {
			t.Fatalf("case %d: state changed on rejection", i)
		}
		if evs := st.DrainEvents(); len(evs) != 0 {
			t.Fatalf("case %d: rejection emitted %v", i, evs)
		}
	}
	if _, err := st.CommitRoute(cases[0], t0); !errors.Is(err, ErrStaleRoute) {
		t.Fatalf("foreign reservation: got %v want ErrStaleRoute", err)
	}
	checkInvariants(t, st)
}

func TestCommitRoute_BusyAgent(t *testing.T) {
	st := newTestState(t, 3, 1, grid.Four)
	idleAgent(t, st, "a1", v(0, 0))
	if _, err := st.CommitRoute(RouteRequest{Agent: "a1", Kind: OpReposition, Path: []grid.Vec2{v(0, 0), v(1, 0)}}, t0); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := st.CommitRoute(RouteRequest{Agent: "a1", Kind: OpReposition, Path: []grid.Vec2{v(0, 0), v(1, 0)}}, t0); !errors.Is(err, ErrAgentBusy) {
		t.Fatalf("got %v want ErrAgentBusy", err)
	}
}

func TestCommitRoute_RespectsForeignClaim(t *testing.T) {
	st := newTestState(t, 3, 1, grid.Four)
	idleAgent(t, st, "a1", v(0, 0))
	exp := t0.Add(5 * time.Second)
	if _, err := st.CreateHold("auto", []grid.Vec2{v(1, 0)}, exp, t0); err != nil {
		t.Fatalf("hold: %v", err)
	}
	req := RouteRequest{Agent: "a1", Kind: OpReposition, Path: []grid.Vec2{v(0, 0), v(1, 0), v(2, 0)}}
	if _, err := st.CommitRoute(req, t0); !errors.Is(err, ErrStaleRoute) {
		t.Fatalf("through foreign claim: %v", err)
	}
	// Lapsed but not yet expired still blocks.
	if _, err := st.CommitRoute(req, exp); !errors.Is(err, ErrStaleRoute) {
		t.Fatalf("through lapsed claim: %v", err)
	}
	// The agent's own live claim lets it through.
	st2 := newTestState(t, 3, 1, grid.Four)
	idleAgent(t, st2, "a1", v(0, 0))
	if _, err := st2.CreateHold("a1", []grid.Vec2{v(1, 0)}, exp, t0); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if _, err := st2.CommitRoute(req, t0); err != nil {
		t.Fatalf("through own claim: %v", err)
	}
	checkInvariants(t, st2)
}

func TestAbortRoute_RestoresItem(t *testing.T) {
	st := newTestState(t, 3, 1, grid.Four)
	idleAgent(t, st, "a1", v(0, 0))
	if _, err := st.StageItem("i1", v(2, 0), nil, "", t0); err != nil {
		t.Fatalf("stage: %v", err)
	}
	before := st.Digest()
	if _, err := st.CommitRoute(RouteRequest{Agent: "a1", Kind: OpPickup, Item: "i1", Path: []grid.Vec2{v(0, 0), v(1, 0), v(2, 0)}}, t0); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := st.AbortRoute("a1", t0); err != nil {
		t.Fatalf("abort: %v", err)
	}
	checkInvariants(t, st)
	if st.Digest() != before {
		t.Fatalf("abort did not restore the pre-commit state")
	}
	if err := st.AbortRoute("a1", t0); !errors.Is(err, ErrNoOperation) {
		t.Fatalf("second abort: %v", err)
	}
}

func TestExpireHold_RouteAbortsRoute(t *testing.T) {
	st := newTestState(t, 3, 1, grid.Four)
	idleAgent(t, st, "a1", v(0, 0))
	op, err := st.CommitRoute(RouteRequest{Agent: "a1", Kind: OpReposition, Path: []grid.Vec2{v(0, 0), v(1, 0), v(2, 0)}}, t0)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := st.ExpireHold(op.Hold, t0.Add(10*time.Second)); err != nil {
		t.Fatalf("expire: %v", err)
	}
	checkInvariants(t, st)
	a, _ := st.Agent("a1")
	if a.State != AgentIdle || a.Operation != nil || a.Cell != v(0, 0) {
		t.Fatalf("agent after route expiry: %+v", a)
	}
	if n := st.Counts().CellsReserved; n != 1 {
		t.Fatalf("reserved=%d want 1", n)
	}
}

func TestExpireAgent_DropsCarriedItem(t *testing.T) {
	st := newTestState(t, 3, 1, grid.Four)
	idleAgent(t, st, "a1", v(0, 0))
	drop := v(2, 0)
	if _, err := st.StageItem("i1", v(1, 0), &drop, "", t0); err != nil {
		t.Fatalf("stage: %v", err)
	}
	op, err := st.CommitRoute(RouteRequest{Agent: "a1", Kind: OpPickup, Item: "i1", Path: []grid.Vec2{v(0, 0), v(1, 0)}}, t0)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := st.CompleteOperation("a1", op.ID, t0); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := st.CreateHold("a1", []grid.Vec2{v(2, 0)}, t0.Add(time.Minute), t0); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if err := st.ExpireAgent("a1", t0.Add(time.Minute)); err != nil {
		t.Fatalf("expire: %v", err)
	}
	checkInvariants(t, st)
	it, _ := st.Item("i1")
	if it.State != ItemStaged || it.Cell == nil || *it.Cell != v(1, 0) {
		t.Fatalf("dropped item: %+v", it)
	}
	if len(st.Holds()) != 0 {
		t.Fatalf("expired agent kept claims: %v", st.Holds())
	}
}

func TestRemoveAgent(t *testing.T) {
	st := newTestState(t, 3, 1, grid.Four)
	idleAgent(t, st, "a1", v(0, 0))
	if _, err := st.CommitRoute(RouteRequest{Agent: "a1", Kind: OpReposition, Path: []grid.Vec2{v(0, 0), v(1, 0)}}, t0); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := st.RemoveAgent("a1", t0); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := st.Agent("a1"); ok {
		t.Fatalf("record not deleted")
	}
	if len(st.Cells()) != 0 || len(st.Holds()) != 0 {
		t.Fatalf("leftovers: %v %v", st.Cells(), st.Holds())
	}
	if err := st.RemoveAgent("a1", t0); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("second remove: %v", err)
	}
}
