package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/storage"
)

// EventLog appends events to a JSONL file and compacts it to the most
// recent max entries once it grows past twice that.
type EventLog struct {
	mu    sync.Mutex
	path  string
	max   int
	lines int
}

// NewEventLog opens the JSONL log at path keeping at most capacity events (0 = unbounded).
func NewEventLog(path string, capacity int) (*EventLog, error) {
	l := &EventLog{path: path, max: capacity}
	events, err := l.readAll()
	if err != nil {
		return nil, err
	}
	l.lines = len(events)
	return l, nil
}

// Compile-time interface check.
var _ storage.EventLog = (*EventLog)(nil)

// Append writes one line.
func (l *EventLog) Append(_ context.Context, e domain.Event) error {
	if e.Type == "" {
		return storage.ErrInvalidInput
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("append event: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close event log: %w", err)
	}

	l.lines++
	if l.max > 0 && l.lines > 2*l.max {
		return l.compact()
	}
	return nil
}

// Recent returns up to limit most recent events, oldest first.
func (l *EventLog) Recent(_ context.Context, limit int) ([]domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// compact rewrites the file with the newest max events. Caller holds mu.
func (l *EventLog) compact() error {
	events, err := l.readAll()
	if err != nil {
		return err
	}
	if len(events) > l.max {
		events = events[len(events)-l.max:]
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}
	if err := renameio.WriteFile(l.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("compact event log: %w", err)
	}
	l.lines = len(events)
	return nil
}

// readAll parses every well-formed line. Malformed lines are skipped.
func (l *EventLog) readAll() ([]domain.Event, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var events []domain.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var e domain.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return events, nil
}
