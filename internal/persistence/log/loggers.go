// Package log archives ticks and facility events as zstd-compressed JSON
// lines, one file per UTC hour of facility time. The archive is
// write-only; nothing in the operator reads it back.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/tick"
)

const hourLayout = "2006-01-02-15"

// Record is one encoded line and the facility time it happened at.
type Record struct {
	At   time.Time
	Line []byte
}

// hourFile is an open <prefix>-YYYY-MM-DD-HH.jsonl.zst. Reopening an
// hour appends a new zstd frame, which readers decode as one stream.
type hourFile struct {
	hour string
	f    *os.File
	enc  *zstd.Encoder
	buf  *bufio.Writer
}

func (h *hourFile) finish() error {
	flushErr := h.buf.Flush()
	encErr := h.enc.Close()
	closeErr := h.f.Close()
	for _, err := range []error{flushErr, encErr, closeErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// HourlyLog files each record under the hour of its own timestamp, so a
// record lands next to the ticks it belongs to however late it is written.
type HourlyLog struct {
	dir    string
	prefix string

	mu  sync.Mutex
	cur *hourFile
}

func NewHourlyLog(dir, prefix string) *HourlyLog {
	return &HourlyLog{dir: dir, prefix: prefix}
}

// Path is the file holding records from the hour containing at.
func (l *HourlyLog) Path(at time.Time) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s-%s.jsonl.zst", l.prefix, at.UTC().Format(hourLayout)))
}

// Append writes recs in order and flushes once. A zero At files the
// record under the current wall-clock hour.
func (l *HourlyLog) Append(recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range recs {
		at := r.At
		if at.IsZero() {
			at = time.Now()
		}
		if err := l.switchTo(at); err != nil {
			return err
		}
		if _, err := l.cur.buf.Write(r.Line); err != nil {
			return err
		}
		if err := l.cur.buf.WriteByte('\n'); err != nil {
			return err
		}
	}
	return l.cur.buf.Flush()
}

func (l *HourlyLog) switchTo(at time.Time) error {
	hour := at.UTC().Format(hourLayout)
	if l.cur != nil && l.cur.hour == hour {
		return nil
	}
	if l.cur != nil {
		err := l.cur.finish()
		l.cur = nil
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.Path(at), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.cur = &hourFile{hour: hour, f: f, enc: enc, buf: bufio.NewWriterSize(enc, 128*1024)}
	return nil
}

func (l *HourlyLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur == nil {
		return nil
	}
	err := l.cur.finish()
	l.cur = nil
	return err
}

// TickLogger archives one entry per maintenance cycle under <logDir>/ticks.
type TickLogger struct{ log *HourlyLog }

func NewTickLogger(logDir string) *TickLogger {
	return &TickLogger{log: NewHourlyLog(filepath.Join(logDir, "ticks"), "ticks")}
}

func (l *TickLogger) WriteTick(e tick.Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return l.log.Append([]Record{{At: e.At, Line: b}})
}

func (l *TickLogger) Close() error { return l.log.Close() }

// EventLogger archives facility events under <logDir>/events. A batch
// straddling an hour boundary is split across both files.
type EventLogger struct{ log *HourlyLog }

func NewEventLogger(logDir string) *EventLogger {
	return &EventLogger{log: NewHourlyLog(filepath.Join(logDir, "events"), "events")}
}

func (l *EventLogger) WriteEvents(events []facility.Event) error {
	recs := make([]Record, 0, len(events))
	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		recs = append(recs, Record{At: e.At, Line: b})
	}
	return l.log.Append(recs)
}

func (l *EventLogger) Close() error { return l.log.Close() }
