package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestWriter_Emit(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "test-run-1")

	err := tw.Emit(EventOperation, map[string]any{
		"operation": "composition",
		"node":      "a||b",
	})
	if err != nil {
		t.Fatalf("Emit error: %v", err)
	}

	var evt Event
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatalf("JSON unmarshal: %v (raw: %s)", err, buf.String())
	}
	if evt.Type != EventOperation {
		t.Errorf("type = %q, want tree_operation", evt.Type)
	}
	if evt.RunID != "test-run-1" {
		t.Errorf("run_id = %q", evt.RunID)
	}
	if evt.Data["node"] != "a||b" {
		t.Errorf("node = %v", evt.Data["node"])
	}
}

func TestWriter_GeneratedRunID(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "")
	if len(tw.RunID()) != 36 {
		t.Errorf("run id %q is not a UUID", tw.RunID())
	}
}

func TestWriter_EmitQuery_WithError(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")

	err := tw.EmitQuery("valid", []string{"a"}, []string{"G a"}, false, 5*time.Millisecond, errors.New("oracle unavailable"))
	if err != nil {
		t.Fatal(err)
	}

	var evt Event
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Data["error"] != "oracle unavailable" {
		t.Errorf("error = %v", evt.Data["error"])
	}
	if evt.Data["kind"] != "valid" {
		t.Errorf("kind = %v", evt.Data["kind"])
	}
}

func TestReadAll(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")
	if err := tw.EmitRunStart("patrol", nil); err != nil {
		t.Fatal(err)
	}
	if err := tw.EmitConflict("day", "night", "contradictory guarantees"); err != nil {
		t.Fatal(err)
	}
	if err := tw.EmitRunComplete("failed", time.Second); err != nil {
		t.Fatal(err)
	}

	events, err := ReadAll(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	want := []EventType{EventRunStart, EventConflict, EventRunComplete}
	for i, e := range events {
		if e.Type != want[i] {
			t.Errorf("event %d type = %q, want %q", i, e.Type, want[i])
		}
	}
}
