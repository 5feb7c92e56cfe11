package facility

import "errors"

var (
	ErrUnknownAgent    = errors.New("unknown agent")
	ErrUnknownItem     = errors.New("unknown item")
	ErrUnknownHold     = errors.New("unknown hold")
	ErrDuplicateID     = errors.New("duplicate id")
	ErrOutOfBounds     = errors.New("cell out of bounds")
	ErrCellUnavailable = errors.New("cell unavailable")
	ErrAgentExpired    = errors.New("agent expired")
	ErrAgentBusy       = errors.New("agent busy")
	ErrNoOperation     = errors.New("agent has no operation")
	ErrUnexpectedStep  = errors.New("unexpected step")
	ErrInvalidRoute    = errors.New("invalid route")
	ErrNotHolder       = errors.New("not the holder")
	ErrNotLapsed       = errors.New("hold not lapsed")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStaleRoute rejects a route that no longer fits the current state,
	// typically because it was computed against an older snapshot. The
	// caller recomputes.
	ErrStaleRoute = errors.New("stale route")
)
