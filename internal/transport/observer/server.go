// Package observer streams tick summaries and facility events to
// websocket subscribers.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/protocol"
	"supersorting.ai/internal/tick"
)

const subscriberQueue = 16

type subscriber struct {
	out   chan []byte
	agent string // only events naming this agent, if set
}

// Server fans frames out to every connected subscriber. Publishing never
// blocks: a subscriber that falls behind loses its oldest frames.
type Server struct {
	log *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu   sync.Mutex
	subs map[string]*subscriber
}

func NewServer(logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		log:  logger,
		subs: map[string]*subscriber{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Server) WriteTick(e tick.Entry) error {
	b, err := json.Marshal(protocol.NewTickFrame(e))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		sendLatest(sub.out, b)
	}
	return nil
}

func (s *Server) WriteEvents(events []facility.Event) error {
	if len(events) == 0 {
		return nil
	}
	all, err := json.Marshal(protocol.NewEventsFrame(events))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.agent == "" {
			sendLatest(sub.out, all)
			continue
		}
		var mine []facility.Event
		for _, e := range events {
			if e.Agent == sub.agent {
				mine = append(mine, e)
			}
		}
		if len(mine) == 0 {
			continue
		}
		b, err := json.Marshal(protocol.NewEventsFrame(mine))
		if err != nil {
			return err
		}
		sendLatest(sub.out, b)
	}
	return nil
}

func (s *Server) join(agent string) (string, *subscriber) {
	id := fmt.Sprintf("O%d", s.nextID.Add(1))
	sub := &subscriber{out: make(chan []byte, subscriberQueue), agent: agent}
	s.mu.Lock()
	s.subs[id] = sub
	s.mu.Unlock()
	return id, sub
}

func (s *Server) leave(id string) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

// Handler upgrades the request and streams frames until the client goes
// away. The optional agent query parameter filters event frames.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, sub := s.join(r.URL.Query().Get("agent"))
		defer s.leave(id)
		s.log.Printf("observer %s connected from %s", id, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sub.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: inbound frames are ignored; it only detects close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		s.log.Printf("observer %s disconnected", id)
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
