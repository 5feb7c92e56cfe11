package httpapi

import (
	"net/http"
	"strings"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/protocol"
)

func (s *Server) dataRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /data/state", s.handleState)
	mux.HandleFunc("GET /data/agents", s.handleAgents)
	mux.HandleFunc("GET /data/items", s.handleItems)
	mux.HandleFunc("GET /data/holds", s.handleHolds)
	mux.HandleFunc("GET /data/ticks", s.handleTicks)
	mux.HandleFunc("GET /data/events", s.handleEvents)
	mux.HandleFunc("GET /data/stream", s.handleStream)
}

func (s *Server) handleState(rw http.ResponseWriter, r *http.Request) {
	var snap facility.Snapshot
	_ = s.store.View(func(st *facility.State) error {
		snap = st.Snapshot(s.now())
		return nil
	})
	writeData(rw, r, snap)
}

// handleAgents lists agents, optionally filtered by ?state=IDLE etc.
func (s *Server) handleAgents(rw http.ResponseWriter, r *http.Request) {
	state := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("state")))
	var out []protocol.AgentStatus
	_ = s.store.View(func(st *facility.State) error {
		agents := st.Agents()
		out = make([]protocol.AgentStatus, 0, len(agents))
		for _, a := range agents {
			if state != "" && a.State.String() != state {
				continue
			}
			out = append(out, protocol.NewAgentStatus(a))
		}
		return nil
	})
	writeData(rw, r, out)
}

func (s *Server) handleItems(rw http.ResponseWriter, r *http.Request) {
	state := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("state")))
	var out []protocol.ItemInfo
	_ = s.store.View(func(st *facility.State) error {
		items := st.Items()
		out = make([]protocol.ItemInfo, 0, len(items))
		for _, it := range items {
			if state != "" && it.State.String() != state {
				continue
			}
			out = append(out, protocol.NewItemInfo(it))
		}
		return nil
	})
	writeData(rw, r, out)
}

func (s *Server) handleHolds(rw http.ResponseWriter, r *http.Request) {
	holder := strings.TrimSpace(r.URL.Query().Get("holder"))
	var out []protocol.HoldInfo
	_ = s.store.View(func(st *facility.State) error {
		holds := st.Holds()
		out = make([]protocol.HoldInfo, 0, len(holds))
		for _, h := range holds {
			if holder != "" && h.Holder != holder {
				continue
			}
			out = append(out, protocol.NewHoldInfo(h))
		}
		return nil
	})
	writeData(rw, r, out)
}

func (s *Server) handleTicks(rw http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(rw, http.StatusNotFound, protocol.ErrNotFound, "index backend disabled")
		return
	}
	rows, err := s.index.RecentTicks(r.Context(), queryLimit(r, 100, 1000))
	if err != nil {
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
		return
	}
	out := make([]protocol.TickSummary, 0, len(rows))
	for _, t := range rows {
		out = append(out, protocol.TickSummary{
			Tick:     t.Tick,
			At:       t.At,
			StepMS:   t.StepMS,
			Actions:  t.Actions,
			Failures: t.Failures,
			Digest:   t.Digest,
		})
	}
	writeData(rw, r, out)
}

func (s *Server) handleEvents(rw http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(rw, http.StatusNotFound, protocol.ErrNotFound, "index backend disabled")
		return
	}
	evs, err := s.index.RecentEvents(r.Context(), strings.TrimSpace(r.URL.Query().Get("agent")), queryLimit(r, 100, 1000))
	if err != nil {
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
		return
	}
	out := make([]protocol.EventInfo, 0, len(evs))
	for _, e := range evs {
		out = append(out, protocol.NewEventInfo(e))
	}
	writeData(rw, r, out)
}

func (s *Server) handleStream(rw http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		writeError(rw, http.StatusNotFound, protocol.ErrNotFound, "stream disabled")
		return
	}
	s.stream.ServeHTTP(rw, r)
}
