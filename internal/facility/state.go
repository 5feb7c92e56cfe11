package facility

import (
	"fmt"
	"sort"
	"time"

	"supersorting.ai/internal/grid"
)

const maxAlerts = 100

type Config struct {
	Bounds    grid.Bounds
	Adjacency grid.Adjacency
	Blocked   []grid.Vec2
	// RouteTTL is how long a committed route's reservations survive
	// without the agent advancing.
	RouteTTL time.Duration
}

// State is the facility's single source of truth. It is not safe for
// concurrent use; all access goes through a Store.
type State struct {
	cfg Config

	cells  []Cell // index X*Height+Y
	agents map[string]*Agent
	items  map[string]*Item
	holds  map[string]*Hold
	alerts []Alert

	events   []Event
	eventSeq uint64
	holdSeq  uint64
	opSeq    uint64
}

func NewState(cfg Config) (*State, error) {
	if cfg.Bounds.Size() == 0 {
		return nil, fmt.Errorf("%w: empty bounds %dx%d", ErrInvalidArgument, cfg.Bounds.Width, cfg.Bounds.Height)
	}
	if !cfg.Adjacency.Valid() {
		return nil, fmt.Errorf("%w: adjacency %d", ErrInvalidArgument, cfg.Adjacency)
	}
	if cfg.RouteTTL <= 0 {
		return nil, fmt.Errorf("%w: route ttl must be > 0", ErrInvalidArgument)
	}
	s := &State{
		cfg:    cfg,
		cells:  make([]Cell, cfg.Bounds.Size()),
		agents: map[string]*Agent{},
		items:  map[string]*Item{},
		holds:  map[string]*Hold{},
	}
	for _, p := range cfg.Bounds.Cells() {
		s.cells[s.index(p)].Pos = p
	}
	for _, p := range cfg.Blocked {
		c := s.cellAt(p)
		if c == nil {
			return nil, fmt.Errorf("%w: blocked cell %v", ErrOutOfBounds, p)
		}
		c.Status = CellBlocked
	}
	s.cfg.Blocked = nil
	return s, nil
}

// Config returns the construction config with Blocked replaced by the
// cells blocked right now.
func (s *State) Config() Config {
	out := s.cfg
	out.Blocked = s.BlockedCells()
	return out
}

func (s *State) index(p grid.Vec2) int { return p.X*s.cfg.Bounds.Height + p.Y }

func (s *State) cellAt(p grid.Vec2) *Cell {
	if !s.cfg.Bounds.Contains(p) {
		return nil
	}
	return &s.cells[s.index(p)]
}

func (s *State) newHoldID() string {
	s.holdSeq++
	return fmt.Sprintf("H%06d", s.holdSeq)
}

func (s *State) newOperationID() string {
	s.opSeq++
	return fmt.Sprintf("OP%06d", s.opSeq)
}

// liveAgent returns the agent if it exists and has not expired.
func (s *State) liveAgent(id string) (*Agent, error) {
	a := s.agents[id]
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	if a.State == AgentExpired {
		return nil, fmt.Errorf("%w: %s", ErrAgentExpired, id)
	}
	return a, nil
}

// claimedBy reports whether the claim overlay on c (if any) permits
// holder at now.
func (s *State) claimedBy(c *Cell, holder string, now time.Time) bool {
	if c.Hold == "" {
		return true
	}
	h := s.holds[c.Hold]
	if h == nil {
		return true
	}
	return h.Holder == holder && !h.Lapsed(now)
}

// enterable is the single occupancy rule shared by routing validation
// and the navigator handed to pathfinding.
func (s *State) enterable(p grid.Vec2, agent, allowItem string, now time.Time) bool {
	c := s.cellAt(p)
	if c == nil {
		return false
	}
	switch c.Status {
	case CellEmpty:
	case CellReserved:
		if c.Agent != agent {
			return false
		}
	case CellOccupied:
		if allowItem == "" || c.Item != allowItem {
			return false
		}
	default:
		return false
	}
	return s.claimedBy(c, agent, now)
}

// ---- readers ----

func (s *State) Agent(id string) (Agent, bool) {
	a := s.agents[id]
	if a == nil {
		return Agent{}, false
	}
	return a.clone(), true
}

// Agents returns every agent record sorted by ID.
func (s *State) Agents() []Agent {
	out := make([]Agent, 0, len(s.agents))
	for _, id := range s.agentIDs() {
		out = append(out, s.agents[id].clone())
	}
	return out
}

func (s *State) agentIDs() []string {
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *State) Item(id string) (Item, bool) {
	it := s.items[id]
	if it == nil {
		return Item{}, false
	}
	return it.clone(), true
}

func (s *State) Items() []Item {
	out := make([]Item, 0, len(s.items))
	for _, id := range s.itemIDs() {
		out = append(out, s.items[id].clone())
	}
	return out
}

func (s *State) itemIDs() []string {
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StagedItems returns Staged items ordered by (StagedAt, ID).
func (s *State) StagedItems() []Item {
	var out []Item
	for _, it := range s.items {
		if it.State == ItemStaged {
			out = append(out, it.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StagedAt.Equal(out[j].StagedAt) {
			return out[i].StagedAt.Before(out[j].StagedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *State) Hold(id string) (Hold, bool) {
	h := s.holds[id]
	if h == nil {
		return Hold{}, false
	}
	return h.clone(), true
}

func (s *State) Holds() []Hold {
	out := make([]Hold, 0, len(s.holds))
	for _, id := range s.holdIDs() {
		out = append(out, s.holds[id].clone())
	}
	return out
}

func (s *State) holdIDs() []string {
	ids := make([]string, 0, len(s.holds))
	for id := range s.holds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LapsedHolds returns holds whose expiry has been reached at now, by ID.
func (s *State) LapsedHolds(now time.Time) []Hold {
	var out []Hold
	for _, id := range s.holdIDs() {
		if h := s.holds[id]; h.Lapsed(now) {
			out = append(out, h.clone())
		}
	}
	return out
}

func (s *State) Cell(p grid.Vec2) (Cell, bool) {
	c := s.cellAt(p)
	if c == nil {
		return Cell{}, false
	}
	return *c, true
}

// Cells returns every cell that is not plain Empty, coordinate-ascending.
func (s *State) Cells() []Cell {
	var out []Cell
	for _, c := range s.cells {
		if c.Status != CellEmpty || c.Hold != "" {
			out = append(out, c)
		}
	}
	return out
}

func (s *State) Alerts() []Alert {
	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

type Counts struct {
	AgentsRegistered int `json:"agents_registered"`
	AgentsIdle       int `json:"agents_idle"`
	AgentsActive     int `json:"agents_active"`
	AgentsExpired    int `json:"agents_expired"`
	ItemsStaged      int `json:"items_staged"`
	ItemsInTransit   int `json:"items_in_transit"`
	ItemsDelivered   int `json:"items_delivered"`
	ClaimHolds       int `json:"claim_holds"`
	RouteHolds       int `json:"route_holds"`
	CellsOccupied    int `json:"cells_occupied"`
	CellsReserved    int `json:"cells_reserved"`
	CellsBlocked     int `json:"cells_blocked"`
}

func (s *State) Counts() Counts {
	var c Counts
	for _, a := range s.agents {
		switch a.State {
		case AgentRegistered:
			c.AgentsRegistered++
		case AgentIdle:
			c.AgentsIdle++
		case AgentActive:
			c.AgentsActive++
		case AgentExpired:
			c.AgentsExpired++
		}
	}
	for _, it := range s.items {
		switch it.State {
		case ItemStaged:
			c.ItemsStaged++
		case ItemInTransit:
			c.ItemsInTransit++
		case ItemDelivered:
			c.ItemsDelivered++
		}
	}
	for _, h := range s.holds {
		if h.Kind == HoldRoute {
			c.RouteHolds++
		} else {
			c.ClaimHolds++
		}
	}
	for _, cell := range s.cells {
		switch cell.Status {
		case CellOccupied:
			c.CellsOccupied++
		case CellReserved:
			c.CellsReserved++
		case CellBlocked:
			c.CellsBlocked++
		}
	}
	return c
}
