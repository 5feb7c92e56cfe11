package protocol

const (
	// Request validation and access.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrUnauthorized = "E_UNAUTHORIZED"
	ErrNotFound     = "E_NOT_FOUND"

	// Facility state.
	ErrConflict = "E_CONFLICT"
	ErrExpired  = "E_EXPIRED"

	// Pathfinding.
	ErrNoRoute          = "E_NO_ROUTE"
	ErrInvalidEndpoint  = "E_INVALID_ENDPOINT"
	ErrExceedsMaxLength = "E_EXCEEDS_MAX_LENGTH"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:       {},
	ErrUnauthorized:     {},
	ErrNotFound:         {},
	ErrConflict:         {},
	ErrExpired:          {},
	ErrNoRoute:          {},
	ErrInvalidEndpoint:  {},
	ErrExceedsMaxLength: {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// ErrorResponse is the body of every non-2xx gateway reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
