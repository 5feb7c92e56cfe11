package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supersorting.ai/internal/client"
	"supersorting.ai/internal/config"
	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/httpapi"
	"supersorting.ai/internal/protocol"
)

const key = "0f4b8c2d-9e6a-4b1f-8c3d-7a5e2f1b9d04"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		Auth: config.AuthConfig{APIKeys: []string{key}},
		Grid: config.GridConfig{Width: 4, Height: 4, Adjacency: 4, MaxPathLength: 32},
		Expiry: config.ExpiryConfig{
			AgentHeartbeat: config.Duration(10 * time.Second),
			RouteHold:      config.Duration(30 * time.Second),
			DefaultHold:    config.Duration(time.Minute),
		},
	}
	st, err := facility.NewState(cfg.Facility())
	require.NoError(t, err)
	srv := httptest.NewServer(httpapi.New(httpapi.Options{
		Store:  facility.NewStore(st, facility.WithInvariantChecks(true)),
		Config: cfg,
	}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestClientAgentFlow(t *testing.T) {
	srv := newServer(t)
	c := client.New(srv.URL+"/", key)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	a, err := c.Register(ctx, "", grid.Vec2{X: 0, Y: 0})
	require.NoError(t, err)
	require.NotEmpty(t, a.AgentID)
	id := a.AgentID

	a, err = c.Heartbeat(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "IDLE", a.State)

	op, err := c.PollOperation(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, op)

	pf, err := c.Pathfinding(ctx, id, grid.Vec2{X: 0, Y: 3}, true)
	require.NoError(t, err)
	require.NotNil(t, pf.Operation)
	assert.Equal(t, 3, pf.Steps)

	op, err = c.PollOperation(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, op)
	for _, cell := range op.Remaining {
		_, err := c.Advance(ctx, id, cell)
		require.NoError(t, err)
	}
	a, err = c.CompleteOperation(ctx, id, op.ID)
	require.NoError(t, err)
	assert.Equal(t, grid.Vec2{X: 0, Y: 3}, a.Cell)

	h, err := c.FreeHold(ctx, id, 0)
	require.NoError(t, err)
	require.NotNil(t, h)
	got, err := c.Hold(ctx, id, h.ID)
	require.NoError(t, err)
	assert.Equal(t, h.Cells, got.Cells)

	require.NoError(t, c.Alert(ctx, id, "low battery"))
	alerts, err := c.Alerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}

func TestClientAutomationAndAdmin(t *testing.T) {
	srv := newServer(t)
	c := client.New(srv.URL, key)
	ctx := context.Background()

	drop := grid.Vec2{X: 3, Y: 3}
	it, err := c.StageItem(ctx, protocol.StageItemRequest{ItemID: "I1", Cell: grid.Vec2{X: 2, Y: 2}, Dropoff: &drop})
	require.NoError(t, err)
	assert.Equal(t, "STAGED", it.State)

	_, err = c.StageItem(ctx, protocol.StageItemRequest{ItemID: "I1", Cell: grid.Vec2{X: 1, Y: 1}})
	require.Error(t, err)
	assert.True(t, client.IsCode(err, protocol.ErrConflict), err.Error())

	h, err := c.CreateHold(ctx, protocol.CreateHoldRequest{Holder: "sorter-1", Cells: []grid.Vec2{{X: 3, Y: 0}}})
	require.NoError(t, err)
	holds, err := c.Holds(ctx, "sorter-1")
	require.NoError(t, err)
	require.Len(t, holds, 1)
	require.NoError(t, c.ReleaseHold(ctx, h.ID, "sorter-1"))

	require.NoError(t, c.BlockCells(ctx, []grid.Vec2{{X: 1, Y: 0}}))
	snap, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Counts.CellsBlocked)
	require.NoError(t, c.UnblockCells(ctx, []grid.Vec2{{X: 1, Y: 0}}))

	_, err = c.Register(ctx, "A9", grid.Vec2{X: 0, Y: 0})
	require.NoError(t, err)
	agents, err := c.Agents(ctx, "registered")
	require.NoError(t, err)
	require.Len(t, agents, 1)
	require.NoError(t, c.RemoveAgent(ctx, "A9"))
	err = c.RemoveAgent(ctx, "A9")
	assert.True(t, client.IsCode(err, protocol.ErrNotFound))

	fc, err := c.FacilityConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, fc.Width)

	_, err = c.Ticks(ctx, 10)
	assert.True(t, client.IsCode(err, protocol.ErrNotFound))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Items["staged"])
}

func TestClientBadKey(t *testing.T) {
	srv := newServer(t)
	_, err := client.New(srv.URL, "nope").Stats(context.Background())
	require.Error(t, err)
	assert.True(t, client.IsCode(err, protocol.ErrUnauthorized))
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
}
