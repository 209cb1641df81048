// Package record writes per-run event logs as JSON lines.
package record

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event names emitted during an agent run.
const (
	EventRunStart  = "run_start"
	EventMessage   = "message"
	EventStepStart = "step_start"
	EventStepEnd   = "step_end"
	EventRunEnd    = "run_end"
)

// Recorder appends one JSON object per line to <logDir>/<runID>.jsonl.
// Every line is flushed as it is written so partial runs stay inspectable.
type Recorder struct {
	mu    sync.Mutex
	file  *os.File
	runID string
}

type line struct {
	TS    string `json:"ts"`
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// NewRecorder creates the log directory if needed and opens the run log.
func NewRecorder(logDir, runID string) (*Recorder, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("record: create log dir %q: %w", logDir, err)
	}
	path := filepath.Join(logDir, runID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("record: open run log %q: %w", path, err)
	}
	return &Recorder{file: f, runID: runID}, nil
}

// RunID returns the run identifier this recorder writes under.
func (r *Recorder) RunID() string { return r.runID }

// Record appends one event line. Serialization failures are logged and
// dropped; a broken event must not abort the run.
func (r *Recorder) Record(event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}

	l := line{
		TS:    time.Now().UTC().Format(time.RFC3339Nano),
		Event: event,
		Data:  data,
	}
	// encoding/json escapes control characters, keeping lines ASCII-safe.
	buf, err := json.Marshal(l)
	if err != nil {
		log.Printf("[Recorder] Drop event %q: %v", event, err)
		return
	}
	if _, err := r.file.Write(append(buf, '\n')); err != nil {
		log.Printf("[Recorder] Write failed: %v", err)
		return
	}
	r.file.Sync()
}

// Close closes the underlying file. Further Record calls are no-ops.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
