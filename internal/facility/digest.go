package facility

import (
	"encoding/binary"
	"encoding/hex"
	"io"

	"github.com/zeebo/blake3"

	"supersorting.ai/internal/grid"
)

// Digest hashes the canonical content of the state (cells, agents,
// items and holds in a fixed order). Identical states on any host give
// identical digests; event and alert history are excluded.
func (s *State) Digest() string {
	h := blake3.New()
	w := digestWriter{w: h}

	w.u64(uint64(s.cfg.Bounds.Width))
	w.u64(uint64(s.cfg.Bounds.Height))
	w.u64(uint64(s.cfg.Adjacency))
	for i := range s.cells {
		c := &s.cells[i]
		if c.Status == CellEmpty && c.Hold == "" {
			continue
		}
		w.cell(c.Pos)
		w.u64(uint64(c.Status))
		w.str(c.Item)
		w.str(c.Agent)
		w.i64(unixNano(c))
		w.str(c.Hold)
	}
	w.u64(uint64(len(s.agents)))
	for _, id := range s.agentIDs() {
		a := s.agents[id]
		w.str(a.ID)
		w.u64(uint64(a.State))
		w.cell(a.Cell)
		w.cells(a.Path)
		w.str(a.Carrying)
		if a.Operation != nil {
			w.str(a.Operation.ID)
			w.u64(uint64(a.Operation.Kind))
			w.str(a.Operation.Item)
			w.cells(a.Operation.Path)
		} else {
			w.str("")
		}
	}
	w.u64(uint64(len(s.items)))
	for _, id := range s.itemIDs() {
		it := s.items[id]
		w.str(it.ID)
		w.u64(uint64(it.State))
		w.optCell(it.Cell)
		w.optCell(it.Dropoff)
		w.str(it.Agent)
	}
	w.u64(uint64(len(s.holds)))
	for _, id := range s.holdIDs() {
		hd := s.holds[id]
		w.str(hd.ID)
		w.str(hd.Holder)
		w.u64(uint64(hd.Kind))
		w.cells(hd.Cells)
		w.i64(hd.Expiry.UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))
}

func unixNano(c *Cell) int64 {
	if c.Expiry.IsZero() {
		return 0
	}
	return c.Expiry.UnixNano()
}

type digestWriter struct {
	w   io.Writer
	buf [8]byte
}

func (d *digestWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(d.buf[:], v)
	_, _ = d.w.Write(d.buf[:])
}

func (d *digestWriter) i64(v int64) { d.u64(uint64(v)) }

func (d *digestWriter) str(s string) {
	d.u64(uint64(len(s)))
	_, _ = io.WriteString(d.w, s)
}

func (d *digestWriter) cell(p grid.Vec2) {
	d.i64(int64(p.X))
	d.i64(int64(p.Y))
}

func (d *digestWriter) optCell(p *grid.Vec2) {
	if p == nil {
		d.u64(0)
		return
	}
	d.u64(1)
	d.cell(*p)
}

func (d *digestWriter) cells(ps []grid.Vec2) {
	d.u64(uint64(len(ps)))
	for _, p := range ps {
		d.cell(p)
	}
}
