package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/protocol"
	"supersorting.ai/internal/tick"
)

type recorder struct {
	events [][]facility.Event
	ticks  []uint64
	err    error
}

func (r *recorder) WriteEvents(evs []facility.Event) error {
	r.events = append(r.events, evs)
	return r.err
}

func (r *recorder) WriteTick(e tick.Entry) error {
	r.ticks = append(r.ticks, e.Tick)
	return r.err
}

type eventsOnly struct{ n int }

func (e *eventsOnly) WriteEvents(evs []facility.Event) error {
	e.n += len(evs)
	return nil
}

func TestFanout_ForwardsByInterface(t *testing.T) {
	failing := &recorder{err: errors.New("disk full")}
	ok := &recorder{}
	only := &eventsOnly{}
	f := NewFanout(nil).Add(failing).Add(ok).Add(only).Add(nil)

	f.PublishEvents([]facility.Event{{Seq: 1}, {Seq: 2}})
	err := f.WriteTick(tick.Entry{Tick: 3})

	require.Error(t, err)
	assert.Len(t, ok.events, 1)
	assert.Equal(t, 2, only.n)
	assert.Equal(t, []uint64{3}, ok.ticks)
	assert.Equal(t, []uint64{3}, failing.ticks)
}

func TestRedisPublisher_PublishesFrames(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	ps := sub.Subscribe(ctx, "sss:events")
	defer ps.Close()
	_, err := ps.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p := NewRedisPublisher(rdb, "sss:events", nil)

	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.WriteEvents([]facility.Event{{Seq: 9, At: at, Kind: facility.EventHoldCreated, Hold: "H000001"}}))
	require.NoError(t, p.WriteEvents(nil))
	require.NoError(t, p.WriteTick(tick.Entry{Tick: 12, At: at, Digest: "abc"}))

	msgs := ps.Channel()
	recv := func() *redis.Message {
		select {
		case m := <-msgs:
			return m
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message")
			return nil
		}
	}

	var ef protocol.EventsFrame
	require.NoError(t, json.Unmarshal([]byte(recv().Payload), &ef))
	assert.Equal(t, protocol.TypeEvents, ef.Type)
	require.Len(t, ef.Events, 1)
	assert.Equal(t, "HOLD_CREATED", ef.Events[0].Kind)

	var tf protocol.TickFrame
	require.NoError(t, json.Unmarshal([]byte(recv().Payload), &tf))
	assert.Equal(t, uint64(12), tf.Tick.Tick)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.ErrorIs(t, rdb.Ping(ctx).Err(), redis.ErrClosed, "publisher owns the client")
	last, err := mr.Get(LastTickKey("sss:events"))
	require.NoError(t, err)
	var stored protocol.TickFrame
	require.NoError(t, json.Unmarshal([]byte(last), &stored))
	assert.Equal(t, "abc", stored.Tick.Digest)

	// Writes after Close are ignored.
	require.NoError(t, p.WriteTick(tick.Entry{Tick: 13}))
	assert.Equal(t, uint64(0), p.Dropped())
}
