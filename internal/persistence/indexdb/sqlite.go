// Package indexdb keeps a queryable SQLite read-model of tick entries and
// facility events. It is written from a single goroutine and never read
// back into facility state.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/tick"
)

const queueCapacity = 65536

type SQLiteIndex struct {
	db   *sql.DB // writer, owned by loop
	read *sql.DB

	mu     sync.RWMutex // guards closed against sends on ch
	ch     chan req
	closed bool
	wg     sync.WaitGroup
	once   sync.Once

	dropTick  atomic.Uint64
	dropEvent atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqEvents
	reqFlush
)

type req struct {
	kind reqKind

	tick   tick.Entry
	events []facility.Event
	done   chan struct{}
}

// Stats reports writer backlog and dropped writes.
type Stats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	DropTickTotal  uint64 `json:"drop_tick_total"`
	DropEventTotal uint64 `json:"drop_event_total"`
}

// TickRow is one indexed maintenance cycle.
type TickRow struct {
	Tick     uint64    `json:"tick"`
	At       time.Time `json:"at"`
	StepMS   float64   `json:"step_ms"`
	Actions  int       `json:"actions"`
	Failures int       `json:"failures"`
	Agents   int       `json:"agents"`
	Items    int       `json:"items"`
	Holds    int       `json:"holds"`
	Digest   string    `json:"digest"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	read, err := sql.Open("sqlite", path)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	read.SetMaxOpenConns(4)
	if _, err := read.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = read.Close()
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:   db,
		read: read,
		ch:   make(chan req, queueCapacity),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			at TEXT NOT NULL,
			step_ms REAL NOT NULL,
			actions INTEGER NOT NULL,
			failures INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			items INTEGER NOT NULL,
			holds INTEGER NOT NULL,
			digest TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS service_reports (
			tick INTEGER NOT NULL,
			service TEXT NOT NULL,
			actions INTEGER NOT NULL,
			failures INTEGER NOT NULL,
			PRIMARY KEY (tick, service)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY,
			at TEXT NOT NULL,
			kind TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			hold_id TEXT NOT NULL,
			operation_id TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_agent_seq ON events(agent_id, seq);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
		if rerr := s.read.Close(); err == nil {
			err = rerr
		}
	})
	return err
}

// WriteTick queues entry for indexing. It never blocks; entries are
// dropped while the writer is behind.
func (s *SQLiteIndex) WriteTick(entry tick.Entry) error {
	if s == nil {
		return nil
	}
	if !s.offer(req{kind: reqTick, tick: entry}) {
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteEvents(events []facility.Event) error {
	if s == nil || len(events) == 0 {
		return nil
	}
	if !s.offer(req{kind: reqEvents, events: events}) {
		s.dropEvent.Add(uint64(len(events)))
	}
	return nil
}

// offer queues r without blocking. Writes after Close are discarded
// silently and reported as queued.
func (s *SQLiteIndex) offer(r req) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

// Flush blocks until everything queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropTickTotal:  s.dropTick.Load(),
		DropEventTotal: s.dropEvent.Load(),
	}
}

// RecentTicks returns up to limit ticks, newest first.
func (s *SQLiteIndex) RecentTicks(ctx context.Context, limit int) ([]TickRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.read.QueryContext(ctx,
		`SELECT tick, at, step_ms, actions, failures, agents, items, holds, digest FROM ticks ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TickRow
	for rows.Next() {
		var r TickRow
		var tickNum int64
		var at string
		if err := rows.Scan(&tickNum, &at, &r.StepMS, &r.Actions, &r.Failures, &r.Agents, &r.Items, &r.Holds, &r.Digest); err != nil {
			return nil, err
		}
		r.Tick = uint64(tickNum)
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentEvents returns up to limit events, newest first, optionally only
// those naming agent.
func (s *SQLiteIndex) RecentEvents(ctx context.Context, agent string, limit int) ([]facility.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	if agent == "" {
		rows, err = s.read.QueryContext(ctx, `SELECT raw_json FROM events ORDER BY seq DESC LIMIT ?`, limit)
	} else {
		rows, err = s.read.QueryContext(ctx, `SELECT raw_json FROM events WHERE agent_id = ? ORDER BY seq DESC LIMIT ?`, agent, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []facility.Event
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e facility.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ServiceTotals sums indexed service reports per service.
func (s *SQLiteIndex) ServiceTotals(ctx context.Context) (map[string][2]int, error) {
	rows, err := s.read.QueryContext(ctx, `SELECT service, SUM(actions), SUM(failures) FROM service_reports GROUP BY service`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][2]int{}
	for rows.Next() {
		var name string
		var actions, failures int
		if err := rows.Scan(&name, &actions, &failures); err != nil {
			return nil, err
		}
		out[name] = [2]int{actions, failures}
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,at,step_ms,actions,failures,agents,items,holds,digest,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertReport, _ := s.db.Prepare(`INSERT OR REPLACE INTO service_reports(tick,service,actions,failures) VALUES(?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(seq,at,kind,agent_id,item_id,hold_id,operation_id,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertReport, insertEvent} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		select {
		case <-ticker.C:
			commit()
			continue
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		}

		switch r.kind {
		case reqFlush:
			commit()
			close(r.done)
			continue

		case reqTick:
			begin()
			e := r.tick
			actions, failures := 0, 0
			for _, rep := range e.Reports {
				actions += rep.Actions
				failures += rep.Failures
			}
			raw, _ := json.Marshal(e)
			if !exec(insertTick, int64(e.Tick), e.At.UTC().Format(time.RFC3339Nano), e.StepMS,
				actions, failures, e.Agents, e.Items, e.Holds, e.Digest, string(raw)) {
				continue
			}
			for _, rep := range e.Reports {
				if !exec(insertReport, int64(e.Tick), rep.Service, rep.Actions, rep.Failures) {
					break
				}
			}

		case reqEvents:
			begin()
			for _, ev := range r.events {
				raw, _ := json.Marshal(ev)
				if !exec(insertEvent, int64(ev.Seq), ev.At.UTC().Format(time.RFC3339Nano), string(ev.Kind),
					ev.Agent, ev.Item, ev.Hold, ev.Operation, string(raw)) {
					break
				}
			}
		}
		if opCount >= commitEvery {
			commit()
		}
	}
}
