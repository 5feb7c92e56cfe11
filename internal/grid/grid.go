package grid

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Vec2 addresses one cell of the facility grid. It encodes as a JSON
// pair [x,y].
type Vec2 struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (v Vec2) ToArray() [2]int { return [2]int{v.X, v.Y} }

func FromArray(a [2]int) Vec2 { return Vec2{X: a[0], Y: a[1]} }

func (v Vec2) String() string { return fmt.Sprintf("(%d,%d)", v.X, v.Y) }

func (v Vec2) MarshalJSON() ([]byte, error) { return json.Marshal(v.ToArray()) }

func (v *Vec2) UnmarshalJSON(b []byte) error {
	var a [2]int
	if err := json.Unmarshal(b, &a); err != nil {
		return fmt.Errorf("cell must be [x,y]: %w", err)
	}
	*v = FromArray(a)
	return nil
}

// Less orders cells coordinate-ascending: X first, then Y.
func Less(a, b Vec2) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}

func Sort(cells []Vec2) {
	sort.Slice(cells, func(i, j int) bool { return Less(cells[i], cells[j]) })
}

type Bounds struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (b Bounds) Contains(p Vec2) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < b.Width && p.Y < b.Height
}

func (b Bounds) Size() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Cells lists every cell in coordinate-ascending order.
func (b Bounds) Cells() []Vec2 {
	out := make([]Vec2, 0, b.Size())
	for x := 0; x < b.Width; x++ {
		for y := 0; y < b.Height; y++ {
			out = append(out, Vec2{X: x, Y: y})
		}
	}
	return out
}

// Adjacency is the cell connectivity rule: 4 (edges) or 8 (edges and corners).
type Adjacency int

const (
	Four  Adjacency = 4
	Eight Adjacency = 8
)

func (a Adjacency) Valid() bool { return a == Four || a == Eight }

// Offsets are pre-sorted so that the produced neighbours come out
// coordinate-ascending (X, then Y).
var (
	offsetsFour  = []Vec2{{X: -1, Y: 0}, {X: 0, Y: -1}, {X: 0, Y: 1}, {X: 1, Y: 0}}
	offsetsEight = []Vec2{
		{X: -1, Y: -1}, {X: -1, Y: 0}, {X: -1, Y: 1},
		{X: 0, Y: -1}, {X: 0, Y: 1},
		{X: 1, Y: -1}, {X: 1, Y: 0}, {X: 1, Y: 1},
	}
)

// Neighbors returns the cells adjacent to p under adj in a fixed,
// coordinate-ascending order. Bounds are not applied.
func Neighbors(p Vec2, adj Adjacency) []Vec2 {
	offs := offsetsFour
	if adj == Eight {
		offs = offsetsEight
	}
	out := make([]Vec2, 0, len(offs))
	for _, d := range offs {
		out = append(out, Vec2{X: p.X + d.X, Y: p.Y + d.Y})
	}
	return out
}

func Adjacent(a, b Vec2, adj Adjacency) bool {
	dx := abs(a.X - b.X)
	dy := abs(a.Y - b.Y)
	if dx == 0 && dy == 0 {
		return false
	}
	if adj == Eight {
		return dx <= 1 && dy <= 1
	}
	return dx+dy == 1
}

// Distance is the step count between a and b on an unobstructed grid.
func Distance(a, b Vec2, adj Adjacency) int {
	dx := abs(a.X - b.X)
	dy := abs(a.Y - b.Y)
	if adj == Eight {
		if dx > dy {
			return dx
		}
		return dy
	}
	return dx + dy
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
