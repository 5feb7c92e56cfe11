package facility

import (
	"fmt"
	"time"

	"supersorting.ai/internal/grid"
)

type CellStatus uint8

const (
	CellEmpty CellStatus = iota
	CellOccupied
	CellReserved
	CellBlocked
)

var cellStatusNames = [...]string{"EMPTY", "OCCUPIED", "RESERVED", "BLOCKED"}

func (s CellStatus) String() string {
	if int(s) < len(cellStatusNames) {
		return cellStatusNames[s]
	}
	return fmt.Sprintf("CellStatus(%d)", uint8(s))
}

func (s CellStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *CellStatus) UnmarshalText(b []byte) error {
	for i, n := range cellStatusNames {
		if n == string(b) {
			*s = CellStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown cell status %q", b)
}

// Cell is one grid cell. Item is set iff Occupied; Agent (and Expiry,
// zero meaning none) iff Reserved. Hold names a claim hold overlaying
// the cell and is independent of Status.
type Cell struct {
	Pos    grid.Vec2  `json:"pos"`
	Status CellStatus `json:"status"`
	Item   string     `json:"item,omitempty"`
	Agent  string     `json:"agent,omitempty"`
	Expiry time.Time  `json:"expiry,omitempty"`
	Hold   string     `json:"hold,omitempty"`
}

type AgentState uint8

const (
	AgentRegistered AgentState = iota
	AgentIdle
	AgentActive
	AgentExpired
)

var agentStateNames = [...]string{"REGISTERED", "IDLE", "ACTIVE", "EXPIRED"}

func (s AgentState) String() string {
	if int(s) < len(agentStateNames) {
		return agentStateNames[s]
	}
	return fmt.Sprintf("AgentState(%d)", uint8(s))
}

func (s AgentState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *AgentState) UnmarshalText(b []byte) error {
	for i, n := range agentStateNames {
		if n == string(b) {
			*s = AgentState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown agent state %q", b)
}

type Agent struct {
	ID            string      `json:"id"`
	State         AgentState  `json:"state"`
	Cell          grid.Vec2   `json:"cell"`
	Path          []grid.Vec2 `json:"path,omitempty"` // remaining cells, next first
	Operation     *Operation  `json:"operation,omitempty"`
	Carrying      string      `json:"carrying,omitempty"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
	RegisteredAt  time.Time   `json:"registered_at"`
}

func (a *Agent) clone() Agent {
	out := *a
	out.Path = cloneCells(a.Path)
	if a.Operation != nil {
		op := a.Operation.clone()
		out.Operation = &op
	}
	return out
}

type ItemState uint8

const (
	ItemStaged ItemState = iota
	ItemInTransit
	ItemDelivered
)

var itemStateNames = [...]string{"STAGED", "IN_TRANSIT", "DELIVERED"}

func (s ItemState) String() string {
	if int(s) < len(itemStateNames) {
		return itemStateNames[s]
	}
	return fmt.Sprintf("ItemState(%d)", uint8(s))
}

func (s ItemState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ItemState) UnmarshalText(b []byte) error {
	for i, n := range itemStateNames {
		if n == string(b) {
			*s = ItemState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown item state %q", b)
}

type Item struct {
	ID          string     `json:"id"`
	State       ItemState  `json:"state"`
	Cell        *grid.Vec2 `json:"cell,omitempty"`  // Staged only
	Agent       string     `json:"agent,omitempty"` // InTransit only
	Dropoff     *grid.Vec2 `json:"dropoff,omitempty"`
	StagedAt    time.Time  `json:"staged_at"`
	DeliveredAt time.Time  `json:"delivered_at,omitempty"`
}

func (it *Item) clone() Item {
	out := *it
	if it.Cell != nil {
		c := *it.Cell
		out.Cell = &c
	}
	if it.Dropoff != nil {
		d := *it.Dropoff
		out.Dropoff = &d
	}
	return out
}

type HoldKind uint8

const (
	// HoldClaim is an explicit claim by an agent or automation client.
	HoldClaim HoldKind = iota
	// HoldRoute tracks the unconsumed cells of a committed route.
	HoldRoute
)

func (k HoldKind) String() string {
	if k == HoldRoute {
		return "ROUTE"
	}
	return "CLAIM"
}

func (k HoldKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *HoldKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "CLAIM":
		*k = HoldClaim
	case "ROUTE":
		*k = HoldRoute
	default:
		return fmt.Errorf("unknown hold kind %q", b)
	}
	return nil
}

type Hold struct {
	ID        string      `json:"id"`
	Holder    string      `json:"holder"`
	Kind      HoldKind    `json:"kind"`
	Cells     []grid.Vec2 `json:"cells"`
	Expiry    time.Time   `json:"expiry"`
	CreatedAt time.Time   `json:"created_at"`
}

// Lapsed reports whether the hold's expiry has been reached at now. A
// lapsed hold no longer authorizes its holder, but keeps excluding
// everyone else until it is removed.
func (h Hold) Lapsed(now time.Time) bool { return !now.Before(h.Expiry) }

func (h *Hold) clone() Hold {
	out := *h
	out.Cells = cloneCells(h.Cells)
	return out
}

type OperationKind uint8

const (
	OpPickup OperationKind = iota
	OpDeliver
	OpReposition
)

var opKindNames = [...]string{"PICKUP", "DELIVER", "REPOSITION"}

func (k OperationKind) String() string {
	if int(k) < len(opKindNames) {
		return opKindNames[k]
	}
	return fmt.Sprintf("OperationKind(%d)", uint8(k))
}

func (k OperationKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *OperationKind) UnmarshalText(b []byte) error {
	for i, n := range opKindNames {
		if n == string(b) {
			*k = OperationKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown operation kind %q", b)
}

type Operation struct {
	ID        string        `json:"id"`
	Kind      OperationKind `json:"kind"`
	Item      string        `json:"item,omitempty"`
	Goal      grid.Vec2     `json:"goal"`
	Path      []grid.Vec2   `json:"path"` // full committed path, start included
	Hold      string        `json:"hold"`
	CreatedAt time.Time     `json:"created_at"`
}

func (o *Operation) clone() Operation {
	out := *o
	out.Path = cloneCells(o.Path)
	return out
}

type Alert struct {
	Agent       string    `json:"agent"`
	Description string    `json:"description"`
	At          time.Time `json:"at"`
}

func cloneCells(in []grid.Vec2) []grid.Vec2 {
	if in == nil {
		return nil
	}
	out := make([]grid.Vec2, len(in))
	copy(out, in)
	return out
}
