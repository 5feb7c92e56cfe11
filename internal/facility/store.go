package facility

import (
	"fmt"
	"sync"
)

// EventSink receives events drained from the state after each update.
// It is called outside the store lock.
type EventSink interface {
	PublishEvents(events []Event)
}

type StoreOption func(*Store)

func WithEventSink(sink EventSink) StoreOption {
	return func(s *Store) { s.sink = sink }
}

// WithInvariantChecks runs CheckInvariants after every update and panics
// on the first violation.
func WithInvariantChecks(on bool) StoreOption {
	return func(s *Store) { s.check = on }
}

// Store is the single point of access to the facility state. Update and
// View are mutually exclusive, so every mutation is observed whole or
// not at all.
type Store struct {
	mu    sync.Mutex
	st    *State
	sink  EventSink
	check bool
}

func NewStore(st *State, opts ...StoreOption) *Store {
	s := &Store{st: st}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Update runs fn with exclusive access to the state. Events produced by
// fn are published after the lock is released, whether or not fn
// returns an error.
func (s *Store) Update(fn func(st *State) error) error {
	events, err := s.update(fn)
	if s.sink != nil && len(events) > 0 {
		s.sink.PublishEvents(events)
	}
	return err
}

func (s *Store) update(fn func(st *State) error) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fn(s.st)
	events := s.st.DrainEvents()
	if s.check {
		if verr := s.st.CheckInvariants(); verr != nil {
			panic(fmt.Sprintf("facility invariant violated: %v", verr))
		}
	}
	return events, err
}

// View runs fn with exclusive access for reading. fn must not mutate.
func (s *Store) View(fn func(st *State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}
