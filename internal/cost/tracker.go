// Package cost tracks model API spend in an append-only JSON-line log.
// The tracker is process-wide and distinct from the per-run recorder.
package cost

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// pricing is USD per 1M tokens for commonly routed models.
// Unknown models are logged with a zero cost estimate.
var pricing = map[string]struct{ Input, Output float64 }{
	"gpt-4o":                            {2.50, 10.00},
	"gpt-4o-mini":                       {0.15, 0.60},
	"openai/gpt-4o":                     {2.50, 10.00},
	"openai/gpt-4o-mini":                {0.15, 0.60},
	"anthropic/claude-3.5-sonnet":       {3.00, 15.00},
	"deepseek/deepseek-chat":            {0.14, 0.28},
	"meta-llama/llama-3.3-70b-instruct": {0.35, 0.40},
}

// Entry is one logged API call.
type Entry struct {
	Timestamp        string  `json:"timestamp"`
	Model            string  `json:"model"`
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// Tracker appends one JSON line per model call and warns when the running
// total crosses fixed budget thresholds.
type Tracker struct {
	mu          sync.Mutex
	file        *os.File
	budgetLimit float64
	totalCost   float64
	warnAt      []float64
	warned      map[float64]bool
}

// NewTracker opens (or creates) the cost log at path.
// budgetLimit is informational only; no calls are blocked.
func NewTracker(path string, budgetLimit float64) (*Tracker, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cost: create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cost: open log %q: %w", path, err)
	}
	return &Tracker{
		file:        f,
		budgetLimit: budgetLimit,
		warnAt:      []float64{0.5, 0.75, 0.9},
		warned:      make(map[float64]bool),
	}, nil
}

// LogCall records one API call and returns its estimated cost in USD.
func (t *Tracker) LogCall(model string, inputTokens, outputTokens int) float64 {
	c := estimate(model, inputTokens, outputTokens)

	entry := Entry{
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		Model:            model,
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		TotalTokens:      inputTokens + outputTokens,
		EstimatedCostUSD: round4(c),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalCost += c
	line, err := json.Marshal(entry)
	if err == nil {
		if _, werr := t.file.Write(append(line, '\n')); werr != nil {
			log.Printf("[Cost] Write failed: %v", werr)
		}
	}

	if t.budgetLimit > 0 {
		frac := t.totalCost / t.budgetLimit
		for _, threshold := range t.warnAt {
			if frac >= threshold && !t.warned[threshold] {
				t.warned[threshold] = true
				log.Printf("[Cost] WARNING: spend $%.2f has reached %.0f%% of budget $%.2f",
					t.totalCost, threshold*100, t.budgetLimit)
			}
		}
	}
	return c
}

// TotalCost returns the accumulated estimated spend in USD.
func (t *Tracker) TotalCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalCost
}

// Close flushes and closes the underlying log file.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

func estimate(model string, inputTokens, outputTokens int) float64 {
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*p.Input + float64(outputTokens)/1e6*p.Output
}

func round4(f float64) float64 {
	return float64(int64(f*10000+0.5)) / 10000
}
