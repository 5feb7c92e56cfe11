package httpapi

import (
	"fmt"
	"net/http"
	"path/filepath"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/persistence/snapshot"
	"supersorting.ai/internal/protocol"
)

func (s *Server) adminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/stats", s.handleStats)
	mux.HandleFunc("GET /admin/alerts", s.handleAlerts)
	mux.HandleFunc("GET /admin/metrics", s.handleMetrics)
	mux.HandleFunc("POST /admin/cells/block", s.handleCells(true))
	mux.HandleFunc("POST /admin/cells/unblock", s.handleCells(false))
	mux.HandleFunc("DELETE /admin/agents/{id}", s.handleRemoveAgent)
	mux.HandleFunc("DELETE /admin/holds/{id}", s.handleAdminReleaseHold)
	mux.HandleFunc("POST /admin/snapshot", s.handleSnapshot)
}

func (s *Server) stats() protocol.Stats {
	m := s.metrics()
	var c facility.Counts
	_ = s.store.View(func(st *facility.State) error {
		c = st.Counts()
		return nil
	})
	return protocol.Stats{
		Tick:          m.Tick,
		LastTickAt:    m.LastAt,
		StepMS:        m.StepMS,
		MaxStepMS:     m.MaxStepMS,
		ActionsTotal:  m.ActionsTotal,
		FailuresTotal: m.FailuresTotal,
		SlowTicks:     m.SlowTicksTotal,
		Digest:        m.Digest,
		Agents: map[string]int{
			"registered": c.AgentsRegistered,
			"idle":       c.AgentsIdle,
			"active":     c.AgentsActive,
			"expired":    c.AgentsExpired,
		},
		Items: map[string]int{
			"staged":     c.ItemsStaged,
			"in_transit": c.ItemsInTransit,
			"delivered":  c.ItemsDelivered,
		},
		Holds: map[string]int{
			"claim": c.ClaimHolds,
			"route": c.RouteHolds,
		},
		Cells: map[string]int{
			"occupied": c.CellsOccupied,
			"reserved": c.CellsReserved,
			"blocked":  c.CellsBlocked,
		},
	}
}

func (s *Server) handleStats(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, s.stats())
}

func (s *Server) handleAlerts(rw http.ResponseWriter, r *http.Request) {
	var out []protocol.AlertInfo
	_ = s.store.View(func(st *facility.State) error {
		alerts := st.Alerts()
		out = make([]protocol.AlertInfo, 0, len(alerts))
		for _, a := range alerts {
			out = append(out, protocol.NewAlertInfo(a))
		}
		return nil
	})
	writeJSON(rw, http.StatusOK, out)
}

// handleMetrics writes the Prometheus text exposition format.
func (s *Server) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	st := s.stats()
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(rw, "# HELP sss_tick Last completed maintenance tick.\n")
	fmt.Fprintf(rw, "# TYPE sss_tick counter\n")
	fmt.Fprintf(rw, "sss_tick %d\n", st.Tick)

	fmt.Fprintf(rw, "# HELP sss_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE sss_step_ms gauge\n")
	fmt.Fprintf(rw, "sss_step_ms %.3f\n", st.StepMS)
	fmt.Fprintf(rw, "sss_step_ms_max %.3f\n", st.MaxStepMS)

	fmt.Fprintf(rw, "# HELP sss_service_actions_total Service actions across all ticks.\n")
	fmt.Fprintf(rw, "# TYPE sss_service_actions_total counter\n")
	fmt.Fprintf(rw, "sss_service_actions_total %d\n", st.ActionsTotal)
	fmt.Fprintf(rw, "# HELP sss_service_failures_total Service failures across all ticks.\n")
	fmt.Fprintf(rw, "# TYPE sss_service_failures_total counter\n")
	fmt.Fprintf(rw, "sss_service_failures_total %d\n", st.FailuresTotal)
	fmt.Fprintf(rw, "# HELP sss_slow_ticks_total Ticks that overran the slow threshold.\n")
	fmt.Fprintf(rw, "# TYPE sss_slow_ticks_total counter\n")
	fmt.Fprintf(rw, "sss_slow_ticks_total %d\n", st.SlowTicks)

	gauge := func(name, help, label string, values map[string]int, order []string) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
		for _, k := range order {
			fmt.Fprintf(rw, "%s{%s=%q} %d\n", name, label, k, values[k])
		}
	}
	gauge("sss_agents", "Agents by state.", "state", st.Agents, []string{"registered", "idle", "active", "expired"})
	gauge("sss_items", "Items by state.", "state", st.Items, []string{"staged", "in_transit", "delivered"})
	gauge("sss_holds", "Holds by kind.", "kind", st.Holds, []string{"claim", "route"})
	gauge("sss_cells", "Non-empty cells by status.", "status", st.Cells, []string{"occupied", "reserved", "blocked"})
}

func (s *Server) handleCells(block bool) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var req protocol.CellsRequest
		if !decode(rw, r, protocol.SchemaCells, &req, false) {
			return
		}
		err := s.store.Update(func(st *facility.State) error {
			if block {
				return st.BlockCells(req.Cells, s.now())
			}
			return st.UnblockCells(req.Cells, s.now())
		})
		if err != nil {
			fail(rw, err)
			return
		}
		rw.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRemoveAgent(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Update(func(st *facility.State) error {
		return st.RemoveAgent(id, s.now())
	}); err != nil {
		fail(rw, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// handleAdminReleaseHold releases any hold regardless of holder. A route
// hold aborts its operation.
func (s *Server) handleAdminReleaseHold(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Update(func(st *facility.State) error {
		return st.ReleaseHold(id, "", s.now())
	}); err != nil {
		fail(rw, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// handleSnapshot exports the current state under the snapshot directory.
// The file is written outside the store lock.
func (s *Server) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	if s.snapDir == "" {
		writeError(rw, http.StatusNotFound, protocol.ErrNotFound, "snapshots disabled")
		return
	}
	var snap facility.Snapshot
	_ = s.store.View(func(st *facility.State) error {
		snap = st.Snapshot(s.now())
		return nil
	})
	path := filepath.Join(s.snapDir, snapshot.FileName(snap.At))
	if err := snapshot.Write(path, snap); err != nil {
		s.log.Printf("snapshot: %v", err)
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
		return
	}
	writeJSON(rw, http.StatusCreated, protocol.SnapshotResponse{Path: path, At: snap.At, Digest: snap.Digest})
}
