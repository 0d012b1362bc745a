// Package trace implements the append-only JSONL audit trail of oracle
// queries and goal-tree operations.
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all trace event types.
type EventType string

const (
	EventRunStart    EventType = "run_start"
	EventRunComplete EventType = "run_complete"
	EventQuery       EventType = "oracle_query"
	EventOperation   EventType = "tree_operation"
	EventConflict    EventType = "conflict"
	EventSelection   EventType = "component_selection"
)

// Event is a single trace event written to the JSONL stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// Writer writes trace events to an append-only JSONL stream.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	runID  string
	enc    *json.Encoder
}

// NewWriter creates a trace writer that writes to the given io.Writer.
// An empty runID is replaced by a fresh UUID.
func NewWriter(w io.Writer, runID string) *Writer {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Writer{
		w:     w,
		runID: runID,
		enc:   json.NewEncoder(w),
	}
}

// NewFileWriter creates a trace writer that appends to a JSONL file.
func NewFileWriter(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	tw := NewWriter(f, runID)
	tw.closer = f
	return tw, nil
}

// RunID returns the identifier stamped on every event.
func (tw *Writer) RunID() string { return tw.runID }

// Close closes the underlying file, if the writer owns one.
func (tw *Writer) Close() error {
	if tw.closer == nil {
		return nil
	}
	return tw.closer.Close()
}

// Emit writes a single trace event.
func (tw *Writer) Emit(eventType EventType, data map[string]any) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	evt := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     tw.runID,
		Data:      data,
	}
	return tw.enc.Encode(evt)
}

// EmitQuery emits an oracle_query event.
func (tw *Writer) EmitQuery(kind string, vars []string, formulas []string, verdict bool, duration time.Duration, err error) error {
	data := map[string]any{
		"kind":     kind,
		"vars":     vars,
		"formulas": formulas,
		"verdict":  verdict,
		"duration": duration.String(),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	return tw.Emit(EventQuery, data)
}

// EmitOperation emits a tree_operation event.
func (tw *Writer) EmitOperation(op, node string, children []string, contracts int) error {
	return tw.Emit(EventOperation, map[string]any{
		"operation": op,
		"node":      node,
		"children":  children,
		"contracts": contracts,
	})
}

// EmitConflict emits a conflict event.
func (tw *Writer) EmitConflict(left, right, message string) error {
	return tw.Emit(EventConflict, map[string]any{
		"left":    left,
		"right":   right,
		"message": message,
	})
}

// EmitRunStart emits a run_start event.
func (tw *Writer) EmitRunStart(mission string, meta map[string]any) error {
	data := map[string]any{"mission": mission}
	if meta != nil {
		data["meta"] = meta
	}
	return tw.Emit(EventRunStart, data)
}

// EmitRunComplete emits a run_complete event.
func (tw *Writer) EmitRunComplete(status string, duration time.Duration) error {
	return tw.Emit(EventRunComplete, map[string]any{
		"status":   status,
		"duration": duration.String(),
	})
}

// ReadAll decodes every event of a JSONL stream.
func ReadAll(r io.Reader) ([]Event, error) {
	var events []Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var evt Event
		if err := json.Unmarshal(sc.Bytes(), &evt); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, evt)
	}
	return events, sc.Err()
}
