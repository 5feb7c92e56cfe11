package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/protocol"
	"supersorting.ai/internal/routing"
)

func (s *Server) agentRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /agent/register", s.handleRegister)
	mux.HandleFunc("POST /agent/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("POST /agent/alert", s.handleAlert)
	mux.HandleFunc("POST /agent/poll_operation", s.handlePollOperation)
	mux.HandleFunc("POST /agent/advance", s.handleAdvance)
	mux.HandleFunc("POST /agent/operation_complete", s.handleOperationComplete)
	mux.HandleFunc("POST /agent/pathfinding", s.handlePathfinding)
	mux.HandleFunc("POST /agent/hold/free", s.handleFreeHold)
	mux.HandleFunc("GET /agent/hold/{id}", s.handleGetHold)
}

func (s *Server) handleRegister(rw http.ResponseWriter, r *http.Request) {
	var req protocol.RegisterRequest
	if !decode(rw, r, protocol.SchemaRegister, &req, false) {
		return
	}
	id := strings.TrimSpace(req.AgentID)
	if id == "" {
		id = s.newID()
	}
	var a facility.Agent
	err := s.store.Update(func(st *facility.State) error {
		var err error
		a, err = st.RegisterAgent(id, req.Cell, s.now())
		return err
	})
	if err != nil {
		fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusCreated, protocol.AgentResponse{Agent: protocol.NewAgentStatus(a)})
}

func (s *Server) handleHeartbeat(rw http.ResponseWriter, r *http.Request) {
	id, ok := agentID(rw, r)
	if !ok {
		return
	}
	var a facility.Agent
	err := s.store.Update(func(st *facility.State) error {
		var err error
		a, err = st.Heartbeat(id, s.now())
		return err
	})
	if err != nil {
		fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.AgentResponse{Agent: protocol.NewAgentStatus(a)})
}

func (s *Server) handleAlert(rw http.ResponseWriter, r *http.Request) {
	id, ok := agentID(rw, r)
	if !ok {
		return
	}
	var req protocol.AlertRequest
	if !decode(rw, r, protocol.SchemaAlert, &req, false) {
		return
	}
	if err := s.store.Update(func(st *facility.State) error {
		return st.RecordAlert(id, req.Description, s.now())
	}); err != nil {
		fail(rw, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// handlePollOperation counts as a heartbeat and reports the agent's
// current operation, if any.
func (s *Server) handlePollOperation(rw http.ResponseWriter, r *http.Request) {
	id, ok := agentID(rw, r)
	if !ok {
		return
	}
	var a facility.Agent
	err := s.store.Update(func(st *facility.State) error {
		var err error
		a, err = st.Heartbeat(id, s.now())
		return err
	})
	if err != nil {
		fail(rw, err)
		return
	}
	resp := protocol.PollOperationResponse{Type: protocol.OperationUnavailable}
	if a.Operation != nil {
		op := protocol.NewOperationInfo(*a.Operation, a.Path)
		resp = protocol.PollOperationResponse{Type: protocol.OperationAvailable, Operation: &op}
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleAdvance(rw http.ResponseWriter, r *http.Request) {
	id, ok := agentID(rw, r)
	if !ok {
		return
	}
	var req protocol.AdvanceRequest
	if !decode(rw, r, protocol.SchemaAdvance, &req, false) {
		return
	}
	var a facility.Agent
	err := s.store.Update(func(st *facility.State) error {
		var err error
		a, err = st.AdvanceAgent(id, req.Cell, s.now())
		return err
	})
	if err != nil {
		fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.AgentResponse{Agent: protocol.NewAgentStatus(a)})
}

func (s *Server) handleOperationComplete(rw http.ResponseWriter, r *http.Request) {
	id, ok := agentID(rw, r)
	if !ok {
		return
	}
	var req protocol.OperationCompleteRequest
	if !decode(rw, r, protocol.SchemaOperationComplete, &req, false) {
		return
	}
	var a facility.Agent
	err := s.store.Update(func(st *facility.State) error {
		var err error
		a, err = st.CompleteOperation(id, req.OperationID, s.now())
		return err
	})
	if err != nil {
		fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.AgentResponse{Agent: protocol.NewAgentStatus(a)})
}

// handlePathfinding answers a route query, from start if given. With
// commit set the route is reserved from the agent's cell as a Reposition
// operation, retried if it goes stale.
func (s *Server) handlePathfinding(rw http.ResponseWriter, r *http.Request) {
	id, ok := agentID(rw, r)
	if !ok {
		return
	}
	var req protocol.PathfindingRequest
	if !decode(rw, r, protocol.SchemaPathfinding, &req, false) {
		return
	}
	now := s.now()
	plan := routing.Request{Agent: id, Kind: facility.OpReposition, Goal: req.Goal}

	if !req.Commit {
		plan.Start = req.Start
		var path []grid.Vec2
		err := s.store.View(func(st *facility.State) error {
			var err error
			path, err = s.planner.Plan(st, plan, now)
			return err
		})
		if err != nil {
			fail(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, protocol.PathfindingResponse{Type: protocol.PathFound, Path: path, Steps: len(path) - 1})
		return
	}
	if req.Start != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "start is only accepted without commit")
		return
	}

	op, err := s.planner.Route(s.store, plan, now)
	if err != nil {
		fail(rw, err)
		return
	}
	info := protocol.NewOperationInfo(op, op.Path[1:])
	writeJSON(rw, http.StatusOK, protocol.PathfindingResponse{
		Type:      protocol.PathFound,
		Path:      op.Path,
		Steps:     len(op.Path) - 1,
		Operation: &info,
	})
}

// handleFreeHold claims the free cell nearest to the agent.
func (s *Server) handleFreeHold(rw http.ResponseWriter, r *http.Request) {
	id, ok := agentID(rw, r)
	if !ok {
		return
	}
	var req protocol.FreeHoldRequest
	if !decode(rw, r, protocol.SchemaHoldFree, &req, true) {
		return
	}
	ttl := s.cfg.Expiry.DefaultHold.D()
	if req.TTLMS > 0 {
		ttl = time.Duration(req.TTLMS) * time.Millisecond
	}
	now := s.now()
	var h facility.Hold
	err := s.store.Update(func(st *facility.State) error {
		cell, err := st.FindFreeCell(id, now)
		if err != nil {
			return err
		}
		h, err = st.CreateHold(id, []grid.Vec2{cell}, now.Add(ttl), now)
		return err
	})
	switch {
	case errors.Is(err, facility.ErrCellUnavailable):
		writeJSON(rw, http.StatusOK, protocol.FreeHoldResponse{Type: protocol.HoldUnavailable})
	case err != nil:
		fail(rw, err)
	default:
		info := protocol.NewHoldInfo(h)
		writeJSON(rw, http.StatusOK, protocol.FreeHoldResponse{Type: protocol.HoldAcquired, Hold: &info})
	}
}

func (s *Server) handleGetHold(rw http.ResponseWriter, r *http.Request) {
	if _, ok := agentID(rw, r); !ok {
		return
	}
	holdID := r.PathValue("id")
	var h facility.Hold
	var found bool
	_ = s.store.View(func(st *facility.State) error {
		h, found = st.Hold(holdID)
		return nil
	})
	if !found {
		writeError(rw, http.StatusNotFound, protocol.ErrNotFound, "unknown hold "+holdID)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.HoldResponse{Hold: protocol.NewHoldInfo(h)})
}
