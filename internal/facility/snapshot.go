package facility

import (
	"time"

	"supersorting.ai/internal/grid"
)

// Snapshot is a point-in-time export of the whole state. Empty, unheld
// cells are omitted.
type Snapshot struct {
	At        time.Time      `json:"at" cbor:"at"`
	Width     int            `json:"width" cbor:"width"`
	Height    int            `json:"height" cbor:"height"`
	Adjacency grid.Adjacency `json:"adjacency" cbor:"adjacency"`
	Cells     []Cell         `json:"cells" cbor:"cells"`
	Agents    []Agent        `json:"agents" cbor:"agents"`
	Items     []Item         `json:"items" cbor:"items"`
	Holds     []Hold         `json:"holds" cbor:"holds"`
	Counts    Counts         `json:"counts" cbor:"counts"`
	Digest    string         `json:"digest" cbor:"digest"`
}

func (s *State) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		At:        now,
		Width:     s.cfg.Bounds.Width,
		Height:    s.cfg.Bounds.Height,
		Adjacency: s.cfg.Adjacency,
		Cells:     s.Cells(),
		Agents:    s.Agents(),
		Items:     s.Items(),
		Holds:     s.Holds(),
		Counts:    s.Counts(),
		Digest:    s.Digest(),
	}
}
