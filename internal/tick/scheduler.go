// Package tick drives the maintenance services on a fixed period.
package tick

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/services"
)

// Period is the interval between maintenance cycles.
const Period = 1000 * time.Millisecond

// slowStep is the step duration above which a cycle is logged.
const slowStep = 250 * time.Millisecond

// Entry summarises one cycle. It is produced after the store lock has
// been released.
type Entry struct {
	Tick    uint64            `json:"tick"`
	At      time.Time         `json:"at"`
	StepMS  float64           `json:"step_ms"`
	Reports []services.Report `json:"reports"`
	Agents  int               `json:"agents"`
	Items   int               `json:"items"`
	Holds   int               `json:"holds"`
	Digest  string            `json:"digest"`
}

type TickLogger interface {
	WriteTick(entry Entry) error
}

// Metrics is a read-only view of scheduler progress, safe to read from
// HTTP handlers while the loop runs.
type Metrics struct {
	Tick           uint64          `json:"tick"`
	LastAt         time.Time       `json:"last_at"`
	StepMS         float64         `json:"step_ms"`
	MaxStepMS      float64         `json:"max_step_ms"`
	ActionsTotal   uint64          `json:"actions_total"`
	FailuresTotal  uint64          `json:"failures_total"`
	SlowTicksTotal uint64          `json:"slow_ticks_total"`
	Counts         facility.Counts `json:"counts"`
	Digest         string          `json:"digest"`
}

type Option func(*Scheduler)

func WithLogger(l *log.Logger) Option { return func(s *Scheduler) { s.logger = l } }

func WithTickLogger(t TickLogger) Option { return func(s *Scheduler) { s.tickLog = t } }

// WithClock replaces time.Now as the source of each cycle's now.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

type Scheduler struct {
	store   *facility.Store
	chain   []services.Service
	logger  *log.Logger
	tickLog TickLogger
	now     func() time.Time

	stepMu  sync.Mutex
	tick    uint64
	metrics atomic.Value // Metrics
}

func New(store *facility.Store, chain []services.Service, opts ...Option) *Scheduler {
	s := &Scheduler{store: store, chain: chain, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard, "", 0)
	}
	s.metrics.Store(Metrics{})
	return s
}

// Run steps once per Period until ctx is done. A cycle that overruns the
// period delays the next one; cycles never overlap.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Step(s.now())
		}
	}
}

// Step runs one full cycle at now: every service in chain order inside a
// single store update.
func (s *Scheduler) Step(now time.Time) Entry {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	start := time.Now()
	s.tick++
	entry := Entry{Tick: s.tick, At: now}
	var counts facility.Counts
	_ = s.store.Update(func(st *facility.State) error {
		entry.Reports = services.RunChain(s.chain, st, now)
		counts = st.Counts()
		entry.Agents = len(st.Agents())
		entry.Items = len(st.Items())
		entry.Holds = len(st.Holds())
		entry.Digest = st.Digest()
		return nil
	})
	elapsed := time.Since(start)
	entry.StepMS = float64(elapsed.Microseconds()) / 1000.0

	prev := s.Metrics()
	m := Metrics{
		Tick:           entry.Tick,
		LastAt:         now,
		StepMS:         entry.StepMS,
		MaxStepMS:      prev.MaxStepMS,
		ActionsTotal:   prev.ActionsTotal,
		FailuresTotal:  prev.FailuresTotal,
		SlowTicksTotal: prev.SlowTicksTotal,
		Counts:         counts,
		Digest:         entry.Digest,
	}
	if entry.StepMS > m.MaxStepMS {
		m.MaxStepMS = entry.StepMS
	}
	for _, r := range entry.Reports {
		m.ActionsTotal += uint64(r.Actions)
		m.FailuresTotal += uint64(r.Failures)
	}
	if elapsed > slowStep {
		m.SlowTicksTotal++
		s.logger.Printf("slow tick=%d step=%s", entry.Tick, elapsed)
	}
	s.metrics.Store(m)

	if s.tickLog != nil {
		if err := s.tickLog.WriteTick(entry); err != nil {
			s.logger.Printf("tick log: %v", err)
		}
	}
	return entry
}

func (s *Scheduler) Metrics() Metrics {
	m, _ := s.metrics.Load().(Metrics)
	return m
}
