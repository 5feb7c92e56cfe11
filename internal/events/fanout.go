// Package events distributes facility events and tick entries to the
// operator's outputs: logs, index, live stream and Redis.
package events

import (
	"errors"
	"io"
	"log"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/tick"
)

type EventWriter interface {
	WriteEvents(events []facility.Event) error
}

// Fanout implements facility.EventSink and tick.TickLogger by forwarding
// to every registered writer in order. A failing writer is logged and
// does not stop the others.
type Fanout struct {
	logger *log.Logger
	events []EventWriter
	ticks  []tick.TickLogger
}

func NewFanout(logger *log.Logger) *Fanout {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Fanout{logger: logger}
}

// Add registers w for events, ticks, or both, depending on which
// interfaces it implements. Nil values are ignored.
func (f *Fanout) Add(w any) *Fanout {
	if w == nil {
		return f
	}
	if ew, ok := w.(EventWriter); ok {
		f.events = append(f.events, ew)
	}
	if tl, ok := w.(tick.TickLogger); ok {
		f.ticks = append(f.ticks, tl)
	}
	return f
}

func (f *Fanout) PublishEvents(events []facility.Event) {
	for _, w := range f.events {
		if err := w.WriteEvents(events); err != nil {
			f.logger.Printf("events: %T: %v", w, err)
		}
	}
}

func (f *Fanout) WriteTick(e tick.Entry) error {
	var errs []error
	for _, w := range f.ticks {
		if err := w.WriteTick(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
