package memory

import (
	"context"
	"log"
	"sync"

	"github.com/strandworks/strand/internal/llm"
)

const (
	// DefaultThresholdTokens is the compaction trigger budget.
	DefaultThresholdTokens = 100000

	warningFraction = 0.8
)

// Health reports the context-budget check for a message list.
type Health struct {
	TokenCount        int
	ThresholdFraction float64
	NeedsCompaction   bool
	Warning           bool
}

// ContextManager watches the token footprint of an agent's memory and
// applies a compaction strategy once the budget is exceeded. Exceeding
// the budget is never an error; it only logs and compacts.
type ContextManager struct {
	provider        llm.Provider
	strategy        Strategy
	thresholdTokens int

	mu                sync.Mutex
	compactionCount   int
	lastSavingsTokens int
}

// NewContextManager creates a manager with the given strategy.
// thresholdTokens <= 0 selects the default budget.
func NewContextManager(provider llm.Provider, strategy Strategy, thresholdTokens int) *ContextManager {
	if thresholdTokens <= 0 {
		thresholdTokens = DefaultThresholdTokens
	}
	return &ContextManager{
		provider:        provider,
		strategy:        strategy,
		thresholdTokens: thresholdTokens,
	}
}

// Check computes the current budget health without modifying anything.
func (cm *ContextManager) Check(messages []llm.Message) Health {
	tokens := cm.provider.CountMessageTokens(messages)
	frac := float64(tokens) / float64(cm.thresholdTokens)
	return Health{
		TokenCount:        tokens,
		ThresholdFraction: frac,
		NeedsCompaction:   frac >= 1.0,
		Warning:           frac >= warningFraction,
	}
}

// Apply checks the budget and compacts when needed. It returns the
// (possibly unchanged) message list; the caller swaps it into the
// agent's memory.
func (cm *ContextManager) Apply(ctx context.Context, messages []llm.Message) []llm.Message {
	h := cm.Check(messages)
	if h.Warning && !h.NeedsCompaction {
		log.Printf("[Context] Warning: %d tokens, %.0f%% of budget", h.TokenCount, h.ThresholdFraction*100)
	}
	if !h.NeedsCompaction || cm.strategy == nil {
		return messages
	}

	log.Printf("[Context] Budget exceeded (%d tokens >= %d), compacting with %s",
		h.TokenCount, cm.thresholdTokens, cm.strategy.Name())
	compacted := cm.strategy.Compact(ctx, messages)
	after := cm.provider.CountMessageTokens(compacted)

	cm.mu.Lock()
	cm.compactionCount++
	cm.lastSavingsTokens = h.TokenCount - after
	cm.mu.Unlock()

	log.Printf("[Context] Compacted %d -> %d messages, saved ~%d tokens",
		len(messages), len(compacted), h.TokenCount-after)
	return compacted
}

// Stats returns (compaction count, tokens saved by the last compaction).
func (cm *ContextManager) Stats() (int, int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.compactionCount, cm.lastSavingsTokens
}
