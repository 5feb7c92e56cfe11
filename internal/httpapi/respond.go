package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/pathfinding"
	"supersorting.ai/internal/protocol"
)

const maxBody = 1 << 20

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

// writeData encodes v as CBOR when the client asks for it, JSON
// otherwise.
func writeData(rw http.ResponseWriter, r *http.Request, v any) {
	if !strings.Contains(r.Header.Get("Accept"), protocol.ContentTypeCBOR) {
		writeJSON(rw, http.StatusOK, v)
		return
	}
	b, err := protocol.MarshalCBOR(v)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
		return
	}
	rw.Header().Set("Content-Type", protocol.ContentTypeCBOR)
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write(b)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, protocol.ErrorResponse{Code: code, Message: msg})
}

// fail maps err to a status and protocol code.
func fail(rw http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(rw, status, code, err.Error())
}

func classify(err error) (int, string) {
	var ve *protocol.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, protocol.ErrBadRequest
	case errors.Is(err, pathfinding.ErrNoRoute):
		return http.StatusUnprocessableEntity, protocol.ErrNoRoute
	case errors.Is(err, pathfinding.ErrInvalidEndpoint):
		return http.StatusUnprocessableEntity, protocol.ErrInvalidEndpoint
	case errors.Is(err, pathfinding.ErrExceedsMaxLength):
		return http.StatusUnprocessableEntity, protocol.ErrExceedsMaxLength
	case errors.Is(err, facility.ErrAgentExpired):
		return http.StatusGone, protocol.ErrExpired
	case errors.Is(err, facility.ErrUnknownAgent),
		errors.Is(err, facility.ErrUnknownItem),
		errors.Is(err, facility.ErrUnknownHold):
		return http.StatusNotFound, protocol.ErrNotFound
	case errors.Is(err, facility.ErrInvalidArgument),
		errors.Is(err, facility.ErrOutOfBounds),
		errors.Is(err, facility.ErrUnexpectedStep),
		errors.Is(err, facility.ErrInvalidRoute):
		return http.StatusBadRequest, protocol.ErrBadRequest
	case errors.Is(err, facility.ErrDuplicateID),
		errors.Is(err, facility.ErrCellUnavailable),
		errors.Is(err, facility.ErrAgentBusy),
		errors.Is(err, facility.ErrNoOperation),
		errors.Is(err, facility.ErrNotHolder),
		errors.Is(err, facility.ErrNotLapsed),
		errors.Is(err, facility.ErrStaleRoute):
		return http.StatusConflict, protocol.ErrConflict
	default:
		return http.StatusInternalServerError, protocol.ErrInternal
	}
}

// decode reads the body, validates it against schema and decodes it
// into out. An empty body is read as {} when optional is set.
func decode(rw http.ResponseWriter, r *http.Request, schema string, out any, optional bool) bool {
	b, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxBody))
	if err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
		return false
	}
	if optional && len(bytes.TrimSpace(b)) == 0 {
		b = []byte("{}")
	}
	if err := protocol.DecodeValid(schema, b, out); err != nil {
		fail(rw, err)
		return false
	}
	return true
}

// agentID returns the X-Agent-Id header, writing a 400 when it is absent.
func agentID(rw http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(protocol.HeaderAgentID))
	if id == "" {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "missing "+protocol.HeaderAgentID)
		return "", false
	}
	return id, true
}

func queryLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
