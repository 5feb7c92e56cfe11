package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	"supersorting.ai/internal/client"
	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/protocol"
)

// simAgent plays the firmware side of one agent: poll, then take one
// step along the current route per call.
type simAgent struct {
	id     string
	c      *client.Client
	logger *log.Logger

	steps     int
	completed int
}

// register places a new agent on a random free cell, retrying on
// conflicts.
func register(ctx context.Context, c *client.Client, id string, width, height int, rng *rand.Rand, logger *log.Logger) (*simAgent, error) {
	var lastErr error
	for attempt := 0; attempt < 32; attempt++ {
		cell := grid.Vec2{X: rng.Intn(width), Y: rng.Intn(height)}
		a, err := c.Register(ctx, id, cell)
		if err == nil {
			if _, err := c.Heartbeat(ctx, a.AgentID); err != nil {
				return nil, err
			}
			logger.Printf("agent %s registered at %v", a.AgentID, a.Cell)
			return &simAgent{id: a.AgentID, c: c, logger: logger}, nil
		}
		if !client.IsCode(err, protocol.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("register %s: %w", id, lastErr)
}

// step polls for work and advances one cell. Polling doubles as the
// heartbeat, so an idle agent stays alive.
func (a *simAgent) step(ctx context.Context) error {
	op, err := a.c.PollOperation(ctx, a.id)
	if err != nil {
		return err
	}
	if op == nil {
		return nil
	}
	if len(op.Remaining) == 0 {
		if _, err := a.c.CompleteOperation(ctx, a.id, op.ID); err != nil {
			return err
		}
		a.completed++
		return nil
	}
	st, err := a.c.Advance(ctx, a.id, op.Remaining[0])
	if err != nil {
		return err
	}
	a.steps++
	if st.Operation == nil {
		a.completed++
		a.logger.Printf("agent %s finished %s %s at %v", a.id, op.Kind, op.ID, st.Cell)
	}
	return nil
}
