package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"supersorting.ai/internal/printer"
)

var (
	stateFilter  string
	holderFilter string
	eventsAgent  string
	ticksLimit   int
	eventsLimit  int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show tick progress and facility counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		st, err := c.Stats(ctx)
		if err != nil {
			return apiError("stats failed", err)
		}
		last := "never"
		if !st.LastTickAt.IsZero() {
			last = st.LastTickAt.Format(time.RFC3339)
		}
		printer.Section("scheduler",
			"tick", strconv.FormatUint(st.Tick, 10),
			"last", last,
			"step", fmt.Sprintf("%.2fms (max %.2fms)", st.StepMS, st.MaxStepMS),
			"actions", strconv.FormatUint(st.ActionsTotal, 10),
			"failures", strconv.FormatUint(st.FailuresTotal, 10),
			"slow ticks", strconv.FormatUint(st.SlowTicks, 10),
			"digest", st.Digest,
		)
		for _, g := range []struct {
			title string
			m     map[string]int
		}{{"agents", st.Agents}, {"items", st.Items}, {"holds", st.Holds}, {"cells", st.Cells}} {
			printer.Section(g.title, sortedKV(g.m)...)
		}
		return nil
	},
}

func sortedKV(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		out = append(out, k, strconv.Itoa(m[k]))
	}
	return out
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Dump the full facility snapshot as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		snap, err := c.State(ctx)
		if err != nil {
			return apiError("state failed", err)
		}
		b, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		printer.Printf("%s\n", b)
		return nil
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		agents, err := c.Agents(ctx, stateFilter)
		if err != nil {
			return apiError("listing agents failed", err)
		}
		rows := make([][]string, 0, len(agents))
		for _, a := range agents {
			op, left := "-", "-"
			if a.Operation != nil {
				op = a.Operation.ID + " " + a.Operation.Kind
				left = strconv.Itoa(len(a.Operation.Remaining))
			}
			rows = append(rows, []string{a.AgentID, a.State, cellString(a.Cell), dash(a.Carrying), op, left, a.LastHeartbeat.Format(time.RFC3339)})
		}
		printer.Table([]string{"id", "state", "cell", "carrying", "operation", "steps", "heartbeat"}, rows)
		return nil
	},
}

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List items",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		items, err := c.Items(ctx, stateFilter)
		if err != nil {
			return apiError("listing items failed", err)
		}
		rows := make([][]string, 0, len(items))
		for _, it := range items {
			cell, drop := "-", "-"
			if it.Cell != nil {
				cell = cellString(*it.Cell)
			}
			if it.Dropoff != nil {
				drop = cellString(*it.Dropoff)
			}
			rows = append(rows, []string{it.ID, it.State, cell, dash(it.Agent), drop})
		}
		printer.Table([]string{"id", "state", "cell", "agent", "dropoff"}, rows)
		return nil
	},
}

var holdsCmd = &cobra.Command{
	Use:   "holds",
	Short: "List holds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		holds, err := c.Holds(ctx, holderFilter)
		if err != nil {
			return apiError("listing holds failed", err)
		}
		rows := make([][]string, 0, len(holds))
		for _, h := range holds {
			rows = append(rows, []string{h.ID, h.Kind, h.Holder, h.Expiry.Format(time.RFC3339), cellsString(h.Cells)})
		}
		printer.Table([]string{"id", "kind", "holder", "expiry", "cells"}, rows)
		return nil
	},
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List recent agent alerts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		alerts, err := c.Alerts(ctx)
		if err != nil {
			return apiError("listing alerts failed", err)
		}
		rows := make([][]string, 0, len(alerts))
		for _, a := range alerts {
			rows = append(rows, []string{a.At.Format(time.RFC3339), a.AgentID, a.Description})
		}
		printer.Table([]string{"at", "agent", "description"}, rows)
		return nil
	},
}

var ticksCmd = &cobra.Command{
	Use:   "ticks",
	Short: "Show recent ticks from the index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		ticks, err := c.Ticks(ctx, ticksLimit)
		if err != nil {
			return apiError("listing ticks failed", err)
		}
		rows := make([][]string, 0, len(ticks))
		for _, t := range ticks {
			rows = append(rows, []string{strconv.FormatUint(t.Tick, 10), t.At.Format(time.RFC3339), fmt.Sprintf("%.2f", t.StepMS), strconv.Itoa(t.Actions), strconv.Itoa(t.Failures), t.Digest})
		}
		printer.Table([]string{"tick", "at", "step_ms", "actions", "failures", "digest"}, rows)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent facility events from the index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		evs, err := c.Events(ctx, eventsAgent, eventsLimit)
		if err != nil {
			return apiError("listing events failed", err)
		}
		rows := make([][]string, 0, len(evs))
		for _, e := range evs {
			ref := e.Item
			if ref == "" {
				ref = e.Hold
			}
			rows = append(rows, []string{strconv.FormatUint(e.Seq, 10), e.At.Format(time.RFC3339Nano), e.Kind, dash(e.Agent), dash(ref), dash(e.Detail)})
		}
		printer.Table([]string{"seq", "at", "kind", "agent", "ref", "detail"}, rows)
		return nil
	},
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	agentsCmd.Flags().StringVar(&stateFilter, "state", "", "filter by state (registered, idle, active, expired)")
	itemsCmd.Flags().StringVar(&stateFilter, "state", "", "filter by state (staged, in_transit, delivered)")
	holdsCmd.Flags().StringVar(&holderFilter, "holder", "", "filter by holder")
	ticksCmd.Flags().IntVar(&ticksLimit, "limit", 20, "rows to show")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "rows to show")
	eventsCmd.Flags().StringVar(&eventsAgent, "agent", "", "only events touching this agent")

	rootCmd.AddCommand(statsCmd, stateCmd, agentsCmd, itemsCmd, holdsCmd, alertsCmd, ticksCmd, eventsCmd)
}
