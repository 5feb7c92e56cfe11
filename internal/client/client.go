// Package client is a Go client for the operator gateway. It is used by
// sssctl and agentsim.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/protocol"
)

// APIError is a non-2xx gateway response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var e *APIError
	return errors.As(err, &e) && e.Code == code
}

type Client struct {
	base string
	key  string
	hc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		base: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		key:  strings.TrimSpace(apiKey),
		hc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// WithHTTPClient replaces the default client (10s timeout).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.hc = hc
	return c
}

func (c *Client) do(ctx context.Context, method, path, agent string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set(protocol.HeaderAPIKey, c.key)
	if agent != "" {
		req.Header.Set(protocol.HeaderAgentID, agent)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var e protocol.ErrorResponse
		if json.Unmarshal(raw, &e) == nil && e.Code != "" {
			apiErr.Code, apiErr.Message = e.Code, e.Message
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Message: "unhealthy"}
	}
	return nil
}

// ---- agent ----

// Register adds an agent at cell. An empty id lets the operator assign one.
func (c *Client) Register(ctx context.Context, id string, cell grid.Vec2) (protocol.AgentStatus, error) {
	var out protocol.AgentResponse
	err := c.do(ctx, http.MethodPost, "/agent/register", "", protocol.RegisterRequest{AgentID: id, Cell: cell}, &out)
	return out.Agent, err
}

func (c *Client) Heartbeat(ctx context.Context, agent string) (protocol.AgentStatus, error) {
	var out protocol.AgentResponse
	err := c.do(ctx, http.MethodPost, "/agent/heartbeat", agent, nil, &out)
	return out.Agent, err
}

func (c *Client) Alert(ctx context.Context, agent, description string) error {
	return c.do(ctx, http.MethodPost, "/agent/alert", agent, protocol.AlertRequest{Description: description}, nil)
}

// PollOperation returns the agent's current operation, or nil when it has
// none.
func (c *Client) PollOperation(ctx context.Context, agent string) (*protocol.OperationInfo, error) {
	var out protocol.PollOperationResponse
	if err := c.do(ctx, http.MethodPost, "/agent/poll_operation", agent, nil, &out); err != nil {
		return nil, err
	}
	if out.Type != protocol.OperationAvailable {
		return nil, nil
	}
	return out.Operation, nil
}

func (c *Client) Advance(ctx context.Context, agent string, cell grid.Vec2) (protocol.AgentStatus, error) {
	var out protocol.AgentResponse
	err := c.do(ctx, http.MethodPost, "/agent/advance", agent, protocol.AdvanceRequest{Cell: cell}, &out)
	return out.Agent, err
}

func (c *Client) CompleteOperation(ctx context.Context, agent, opID string) (protocol.AgentStatus, error) {
	var out protocol.AgentResponse
	err := c.do(ctx, http.MethodPost, "/agent/operation_complete", agent, protocol.OperationCompleteRequest{OperationID: opID}, &out)
	return out.Agent, err
}

func (c *Client) Pathfinding(ctx context.Context, agent string, goal grid.Vec2, commit bool) (protocol.PathfindingResponse, error) {
	var out protocol.PathfindingResponse
	err := c.do(ctx, http.MethodPost, "/agent/pathfinding", agent, protocol.PathfindingRequest{Goal: goal, Commit: commit}, &out)
	return out, err
}

// PathFrom asks for a route from start to goal without reserving it.
func (c *Client) PathFrom(ctx context.Context, agent string, start, goal grid.Vec2) (protocol.PathfindingResponse, error) {
	var out protocol.PathfindingResponse
	err := c.do(ctx, http.MethodPost, "/agent/pathfinding", agent, protocol.PathfindingRequest{Start: &start, Goal: goal}, &out)
	return out, err
}

// FreeHold claims the free cell nearest the agent. It returns nil when no
// cell is available.
func (c *Client) FreeHold(ctx context.Context, agent string, ttl time.Duration) (*protocol.HoldInfo, error) {
	var out protocol.FreeHoldResponse
	if err := c.do(ctx, http.MethodPost, "/agent/hold/free", agent, protocol.FreeHoldRequest{TTLMS: ttl.Milliseconds()}, &out); err != nil {
		return nil, err
	}
	if out.Type != protocol.HoldAcquired {
		return nil, nil
	}
	return out.Hold, nil
}

func (c *Client) Hold(ctx context.Context, agent, id string) (protocol.HoldInfo, error) {
	var out protocol.HoldResponse
	err := c.do(ctx, http.MethodGet, "/agent/hold/"+url.PathEscape(id), agent, nil, &out)
	return out.Hold, err
}

// ---- admin ----

func (c *Client) Stats(ctx context.Context) (protocol.Stats, error) {
	var out protocol.Stats
	err := c.do(ctx, http.MethodGet, "/admin/stats", "", nil, &out)
	return out, err
}

func (c *Client) Alerts(ctx context.Context) ([]protocol.AlertInfo, error) {
	var out []protocol.AlertInfo
	err := c.do(ctx, http.MethodGet, "/admin/alerts", "", nil, &out)
	return out, err
}

func (c *Client) BlockCells(ctx context.Context, cells []grid.Vec2) error {
	return c.do(ctx, http.MethodPost, "/admin/cells/block", "", protocol.CellsRequest{Cells: cells}, nil)
}

func (c *Client) UnblockCells(ctx context.Context, cells []grid.Vec2) error {
	return c.do(ctx, http.MethodPost, "/admin/cells/unblock", "", protocol.CellsRequest{Cells: cells}, nil)
}

func (c *Client) RemoveAgent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/admin/agents/"+url.PathEscape(id), "", nil, nil)
}

// ForceReleaseHold releases any hold regardless of holder.
func (c *Client) ForceReleaseHold(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/admin/holds/"+url.PathEscape(id), "", nil, nil)
}

// Snapshot asks the operator to export its state to disk.
func (c *Client) Snapshot(ctx context.Context) (protocol.SnapshotResponse, error) {
	var out protocol.SnapshotResponse
	err := c.do(ctx, http.MethodPost, "/admin/snapshot", "", nil, &out)
	return out, err
}

// ---- automation ----

func (c *Client) StageItem(ctx context.Context, req protocol.StageItemRequest) (protocol.ItemInfo, error) {
	var out protocol.ItemResponse
	err := c.do(ctx, http.MethodPost, "/automation/items", "", req, &out)
	return out.Item, err
}

func (c *Client) CreateHold(ctx context.Context, req protocol.CreateHoldRequest) (protocol.HoldInfo, error) {
	var out protocol.HoldResponse
	err := c.do(ctx, http.MethodPost, "/automation/holds", "", req, &out)
	return out.Hold, err
}

func (c *Client) ReleaseHold(ctx context.Context, id, holder string) error {
	q := url.Values{"holder": {holder}}
	return c.do(ctx, http.MethodDelete, "/automation/holds/"+url.PathEscape(id)+"?"+q.Encode(), "", nil, nil)
}

func (c *Client) FacilityConfig(ctx context.Context) (protocol.FacilityConfig, error) {
	var out protocol.FacilityConfig
	err := c.do(ctx, http.MethodGet, "/automation/config", "", nil, &out)
	return out, err
}

// ---- data ----

func (c *Client) State(ctx context.Context) (facility.Snapshot, error) {
	var out facility.Snapshot
	err := c.do(ctx, http.MethodGet, "/data/state", "", nil, &out)
	return out, err
}

func (c *Client) Agents(ctx context.Context, state string) ([]protocol.AgentStatus, error) {
	var out []protocol.AgentStatus
	err := c.do(ctx, http.MethodGet, "/data/agents"+query("state", state), "", nil, &out)
	return out, err
}

func (c *Client) Items(ctx context.Context, state string) ([]protocol.ItemInfo, error) {
	var out []protocol.ItemInfo
	err := c.do(ctx, http.MethodGet, "/data/items"+query("state", state), "", nil, &out)
	return out, err
}

func (c *Client) Holds(ctx context.Context, holder string) ([]protocol.HoldInfo, error) {
	var out []protocol.HoldInfo
	err := c.do(ctx, http.MethodGet, "/data/holds"+query("holder", holder), "", nil, &out)
	return out, err
}

func (c *Client) Ticks(ctx context.Context, limit int) ([]protocol.TickSummary, error) {
	var out []protocol.TickSummary
	err := c.do(ctx, http.MethodGet, "/data/ticks"+query("limit", limitString(limit)), "", nil, &out)
	return out, err
}

func (c *Client) Events(ctx context.Context, agent string, limit int) ([]protocol.EventInfo, error) {
	q := url.Values{}
	if agent != "" {
		q.Set("agent", agent)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/data/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []protocol.EventInfo
	err := c.do(ctx, http.MethodGet, path, "", nil, &out)
	return out, err
}

func query(k, v string) string {
	if v == "" {
		return ""
	}
	return "?" + url.Values{k: {v}}.Encode()
}

func limitString(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}
