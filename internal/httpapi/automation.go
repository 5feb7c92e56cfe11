package httpapi

import (
	"net/http"
	"strings"
	"time"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/protocol"
)

func (s *Server) automationRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /automation/items", s.handleStageItem)
	mux.HandleFunc("POST /automation/holds", s.handleCreateHold)
	mux.HandleFunc("DELETE /automation/holds/{id}", s.handleReleaseHold)
	mux.HandleFunc("GET /automation/config", s.handleConfig)
}

func (s *Server) handleStageItem(rw http.ResponseWriter, r *http.Request) {
	var req protocol.StageItemRequest
	if !decode(rw, r, protocol.SchemaStageItem, &req, false) {
		return
	}
	id := strings.TrimSpace(req.ItemID)
	if id == "" {
		id = s.newID()
	}
	var it facility.Item
	err := s.store.Update(func(st *facility.State) error {
		var err error
		it, err = st.StageItem(id, req.Cell, req.Dropoff, req.Holder, s.now())
		return err
	})
	if err != nil {
		fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusCreated, protocol.ItemResponse{Item: protocol.NewItemInfo(it)})
}

func (s *Server) handleCreateHold(rw http.ResponseWriter, r *http.Request) {
	var req protocol.CreateHoldRequest
	if !decode(rw, r, protocol.SchemaCreateHold, &req, false) {
		return
	}
	ttl := s.cfg.Expiry.DefaultHold.D()
	if req.TTLMS > 0 {
		ttl = time.Duration(req.TTLMS) * time.Millisecond
	}
	now := s.now()
	var h facility.Hold
	err := s.store.Update(func(st *facility.State) error {
		var err error
		h, err = st.CreateHold(req.Holder, req.Cells, now.Add(ttl), now)
		return err
	})
	if err != nil {
		fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusCreated, protocol.HoldResponse{Hold: protocol.NewHoldInfo(h)})
}

// handleReleaseHold releases a claim on behalf of the holder named in
// the holder query parameter.
func (s *Server) handleReleaseHold(rw http.ResponseWriter, r *http.Request) {
	holder := strings.TrimSpace(r.URL.Query().Get("holder"))
	if holder == "" {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "missing holder")
		return
	}
	id := r.PathValue("id")
	if err := s.store.Update(func(st *facility.State) error {
		return st.ReleaseHold(id, holder, s.now())
	}); err != nil {
		fail(rw, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConfig(rw http.ResponseWriter, r *http.Request) {
	c := s.cfg
	blocked := []grid.Vec2{}
	_ = s.store.View(func(st *facility.State) error {
		blocked = append(blocked, st.BlockedCells()...)
		return nil
	})
	writeJSON(rw, http.StatusOK, protocol.FacilityConfig{
		Width:            c.Grid.Width,
		Height:           c.Grid.Height,
		Adjacency:        c.Grid.Adjacency,
		MaxPathLength:    c.Grid.MaxPathLength,
		HeartbeatTimeout: c.Expiry.AgentHeartbeat.D().String(),
		RouteHoldTTL:     c.Expiry.RouteHold.D().String(),
		DefaultHoldTTL:   c.Expiry.DefaultHold.D().String(),
		DefragEnabled:    c.Defrag.Enabled,
		DefragHome:       grid.FromArray(c.Defrag.Home),
		Blocked:          blocked,
	})
}
