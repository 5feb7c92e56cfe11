package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/grid"
)

func TestWriteRead(t *testing.T) {
	st, err := facility.NewState(facility.Config{
		Bounds:    grid.Bounds{Width: 3, Height: 3},
		Adjacency: grid.Four,
		RouteTTL:  time.Minute,
	})
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := st.RegisterAgent("A1", grid.Vec2{X: 0, Y: 0}, now); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := st.StageItem("I1", grid.Vec2{X: 2, Y: 2}, nil, "", now); err != nil {
		t.Fatalf("stage: %v", err)
	}
	snap := st.Snapshot(now)

	path := filepath.Join(t.TempDir(), "snapshots", FileName(now))
	if err := Write(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
	h, got, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if h.Version != Version || h.Agents != 1 || h.Items != 1 || h.Digest != snap.Digest {
		t.Fatalf("header=%+v", h)
	}
	if got.Digest != snap.Digest || len(got.Cells) != len(snap.Cells) {
		t.Fatalf("snapshot mismatch: %+v", got)
	}
	if got.Agents[0].State != facility.AgentRegistered || got.Cells[0].Status != snap.Cells[0].Status {
		t.Fatalf("enum round trip: agent=%v cell=%v", got.Agents[0].State, got.Cells[0].Status)
	}
	if filepath.Base(path) != "20260301T120000.000Z.snap.zst" {
		t.Fatalf("name=%s", filepath.Base(path))
	}
}
