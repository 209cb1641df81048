package record

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		lines = append(lines, m)
	}
	return lines
}

func TestRecorder_EventOrderingAndFormat(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, "run42")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	rec.Record(EventRunStart, map[string]any{"request": "hi"})
	rec.Record(EventStepStart, map[string]any{"step": 1})
	rec.Record(EventStepEnd, map[string]any{"step": 1, "result": "ok"})
	rec.Record(EventRunEnd, map[string]any{"state": "FINISHED"})
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLines(t, filepath.Join(dir, "run42.jsonl"))
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	wantOrder := []string{EventRunStart, EventStepStart, EventStepEnd, EventRunEnd}
	for i, want := range wantOrder {
		if lines[i]["event"] != want {
			t.Errorf("line %d event = %v, want %s", i, lines[i]["event"], want)
		}
		ts, _ := lines[i]["ts"].(string)
		if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
			t.Errorf("line %d ts %q not RFC3339: %v", i, ts, err)
		}
	}
	data := lines[0]["data"].(map[string]any)
	if data["request"] != "hi" {
		t.Errorf("run_start data = %v", data)
	}
}

func TestRecorder_RecordAfterCloseIsNoOp(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, "run1")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	rec.Record(EventRunStart, nil)
	rec.Close()
	rec.Record(EventRunEnd, nil) // must not panic or write

	lines := readLines(t, filepath.Join(dir, "run1.jsonl"))
	if len(lines) != 1 {
		t.Errorf("got %d lines, want 1", len(lines))
	}
}

func TestRecorder_OmitsEmptyData(t *testing.T) {
	dir := t.TempDir()
	rec, _ := NewRecorder(dir, "run2")
	rec.Record(EventRunStart, nil)
	rec.Close()

	raw, _ := os.ReadFile(filepath.Join(dir, "run2.jsonl"))
	if string(raw) == "" {
		t.Fatal("no output written")
	}
	var m map[string]any
	json.Unmarshal(raw[:len(raw)-1], &m)
	if _, ok := m["data"]; ok {
		t.Error("nil data should be omitted")
	}
}
