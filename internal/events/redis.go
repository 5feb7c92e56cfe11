package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/protocol"
	"supersorting.ai/internal/tick"
)

const redisQueue = 1024

type redisMsg struct {
	payload []byte
	tick    bool
}

// RedisPublisher publishes EVENTS and TICK frames as JSON on a pub/sub
// channel and keeps the latest TICK frame at <channel>:last_tick. All
// Redis I/O happens on its own goroutine; a full queue drops frames.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	logger  *log.Logger

	mu      sync.RWMutex // guards closed against sends on ch
	ch      chan redisMsg
	closed  bool
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

func NewRedisPublisher(rdb *redis.Client, channel string, logger *log.Logger) *RedisPublisher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	p := &RedisPublisher{
		rdb:     rdb,
		channel: channel,
		logger:  logger,
		ch:      make(chan redisMsg, redisQueue),
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop()
	}()
	return p
}

// LastTickKey is the key holding the most recent TICK frame.
func LastTickKey(channel string) string { return channel + ":last_tick" }

func (p *RedisPublisher) Dropped() uint64 { return p.dropped.Load() }

func (p *RedisPublisher) WriteEvents(events []facility.Event) error {
	if len(events) == 0 {
		return nil
	}
	b, err := json.Marshal(protocol.NewEventsFrame(events))
	if err != nil {
		return err
	}
	p.enqueue(redisMsg{payload: b})
	return nil
}

func (p *RedisPublisher) WriteTick(e tick.Entry) error {
	b, err := json.Marshal(protocol.NewTickFrame(e))
	if err != nil {
		return err
	}
	p.enqueue(redisMsg{payload: b, tick: true})
	return nil
}

func (p *RedisPublisher) enqueue(m redisMsg) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- m:
	default:
		p.dropped.Add(1)
	}
}

func (p *RedisPublisher) loop() {
	for m := range p.ch {
		if err := p.publish(m); err != nil {
			p.logger.Printf("redis: %v", err)
		}
	}
}

func (p *RedisPublisher) publish(m redisMsg) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.rdb.Publish(ctx, p.channel, m.payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}
	if m.tick {
		if err := p.rdb.Set(ctx, LastTickKey(p.channel), m.payload, 0).Err(); err != nil {
			return fmt.Errorf("failed to store last tick: %w", err)
		}
	}
	return nil
}

// Close drains queued frames, then closes the Redis client.
func (p *RedisPublisher) Close() error {
	var err error
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.ch)
		p.mu.Unlock()
		p.wg.Wait()
		err = p.rdb.Close()
	})
	return err
}
