package protocol

import (
	"time"

	"supersorting.ai/internal/grid"
)

// Gateway headers.
const (
	HeaderAPIKey  = "X-Api-Key"
	HeaderAgentID = "X-Agent-Id"
)

// ---- agent ----

// RegisterRequest (agent -> operator). AgentID is optional; the gateway
// assigns a UUID when it is empty.
type RegisterRequest struct {
	AgentID string    `json:"agent_id,omitempty"`
	Cell    grid.Vec2 `json:"cell"`
}

type AgentStatus struct {
	AgentID       string         `json:"agent_id"`
	State         string         `json:"state"`
	Cell          grid.Vec2      `json:"cell"`
	Carrying      string         `json:"carrying,omitempty"`
	Operation     *OperationInfo `json:"operation,omitempty"`
	LastHeartbeat time.Time      `json:"last_heartbeat"`
}

type AgentResponse struct {
	Agent AgentStatus `json:"agent"`
}

// Poll and free-hold responses carry a type discriminator.
const (
	OperationAvailable   = "OperationAvailable"
	OperationUnavailable = "OperationUnavailable"
	HoldAcquired         = "HoldAcquired"
	HoldUnavailable      = "HoldUnavailable"
	PathFound            = "PathFound"
)

type PollOperationResponse struct {
	Type      string         `json:"type"`
	Operation *OperationInfo `json:"operation,omitempty"`
}

type OperationInfo struct {
	ID   string    `json:"id"`
	Kind string    `json:"kind"`
	Item string    `json:"item,omitempty"`
	Goal grid.Vec2 `json:"goal"`
	// Remaining lists the cells still to enter, next first.
	Remaining []grid.Vec2 `json:"remaining"`
	Hold      string      `json:"hold"`
}

type AlertRequest struct {
	Description string `json:"description"`
}

type AdvanceRequest struct {
	Cell grid.Vec2 `json:"cell"`
}

type OperationCompleteRequest struct {
	OperationID string `json:"operation_id"`
}

// PathfindingRequest asks for a route to Goal, from Start when given and
// otherwise from the agent's cell. With Commit set the route is reserved
// as a Reposition operation; Start is then rejected.
type PathfindingRequest struct {
	Start  *grid.Vec2 `json:"start,omitempty"`
	Goal   grid.Vec2  `json:"goal"`
	Commit bool       `json:"commit,omitempty"`
}

type PathfindingResponse struct {
	Type      string         `json:"type"`
	Path      []grid.Vec2    `json:"path"`
	Steps     int            `json:"steps"`
	Operation *OperationInfo `json:"operation,omitempty"`
}

// FreeHoldRequest claims the free cell nearest to the calling agent.
// TTLMS of zero means the configured default.
type FreeHoldRequest struct {
	TTLMS int64 `json:"ttl_ms,omitempty"`
}

type FreeHoldResponse struct {
	Type string    `json:"type"`
	Hold *HoldInfo `json:"hold,omitempty"`
}

type HoldResponse struct {
	Hold HoldInfo `json:"hold"`
}

type HoldInfo struct {
	ID        string      `json:"id"`
	Holder    string      `json:"holder"`
	Kind      string      `json:"kind"`
	Cells     []grid.Vec2 `json:"cells"`
	Expiry    time.Time   `json:"expiry"`
	CreatedAt time.Time   `json:"created_at"`
}

// ---- automation ----

type StageItemRequest struct {
	ItemID  string     `json:"item_id,omitempty"`
	Cell    grid.Vec2  `json:"cell"`
	Dropoff *grid.Vec2 `json:"dropoff,omitempty"`
	// Holder names the owner of a claim covering Cell, if any.
	Holder string `json:"holder,omitempty"`
}

type ItemInfo struct {
	ID          string     `json:"id"`
	State       string     `json:"state"`
	Cell        *grid.Vec2 `json:"cell,omitempty"`
	Agent       string     `json:"agent,omitempty"`
	Dropoff     *grid.Vec2 `json:"dropoff,omitempty"`
	StagedAt    time.Time  `json:"staged_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

type ItemResponse struct {
	Item ItemInfo `json:"item"`
}

type CreateHoldRequest struct {
	Holder string      `json:"holder"`
	Cells  []grid.Vec2 `json:"cells"`
	TTLMS  int64       `json:"ttl_ms,omitempty"`
}

// FacilityConfig is the operator configuration visible to automation
// clients. It never includes API keys.
type FacilityConfig struct {
	Width            int         `json:"width"`
	Height           int         `json:"height"`
	Adjacency        int         `json:"adjacency"`
	MaxPathLength    int         `json:"max_path_length"`
	HeartbeatTimeout string      `json:"agent_heartbeat"`
	RouteHoldTTL     string      `json:"route_hold"`
	DefaultHoldTTL   string      `json:"default_hold"`
	DefragEnabled    bool        `json:"defrag_enabled"`
	DefragHome       grid.Vec2   `json:"defrag_home"`
	Blocked          []grid.Vec2 `json:"blocked"`
}

// ---- admin ----

type CellsRequest struct {
	Cells []grid.Vec2 `json:"cells"`
}

type Stats struct {
	Tick          uint64    `json:"tick"`
	LastTickAt    time.Time `json:"last_tick_at"`
	StepMS        float64   `json:"step_ms"`
	MaxStepMS     float64   `json:"max_step_ms"`
	ActionsTotal  uint64    `json:"actions_total"`
	FailuresTotal uint64    `json:"failures_total"`
	SlowTicks     uint64    `json:"slow_ticks_total"`
	Digest        string    `json:"digest"`

	Agents map[string]int `json:"agents"`
	Items  map[string]int `json:"items"`
	Holds  map[string]int `json:"holds"`
	Cells  map[string]int `json:"cells"`
}

// SnapshotResponse reports a state export written by the operator.
type SnapshotResponse struct {
	Path   string    `json:"path"`
	At     time.Time `json:"at"`
	Digest string    `json:"digest"`
}

type AlertInfo struct {
	AgentID     string    `json:"agent_id"`
	Description string    `json:"description"`
	At          time.Time `json:"at"`
}

// ---- data ----

type TickSummary struct {
	Tick     uint64    `json:"tick"`
	At       time.Time `json:"at"`
	StepMS   float64   `json:"step_ms"`
	Actions  int       `json:"actions"`
	Failures int       `json:"failures"`
	Digest   string    `json:"digest"`
}

type EventInfo struct {
	Seq       uint64      `json:"seq"`
	At        time.Time   `json:"at"`
	Kind      string      `json:"kind"`
	Agent     string      `json:"agent,omitempty"`
	Item      string      `json:"item,omitempty"`
	Hold      string      `json:"hold,omitempty"`
	Operation string      `json:"operation,omitempty"`
	Cells     []grid.Vec2 `json:"cells,omitempty"`
	Detail    string      `json:"detail,omitempty"`
}

// TickFrame and EventsFrame are the /data/stream websocket frames.
type TickFrame struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Tick            TickSummary `json:"tick"`
	Agents          int         `json:"agents"`
	Items           int         `json:"items"`
	Holds           int         `json:"holds"`
}

type EventsFrame struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Events          []EventInfo `json:"events"`
}
