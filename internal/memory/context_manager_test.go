package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/strandworks/strand/internal/llm"
)

func bigHistory(n int) []llm.Message {
	var msgs []llm.Message
	for i := 0; i < n; i++ {
		msgs = append(msgs, toolMsg("shell", strings.Repeat("data ", 50)))
	}
	return msgs
}

func TestContextManager_HealthThresholds(t *testing.T) {
	p := &fakeProvider{}
	cm := NewContextManager(p, nil, 1000)

	small := []llm.Message{llm.UserMessage("hi")}
	h := cm.Check(small)
	if h.Warning || h.NeedsCompaction {
		t.Errorf("tiny history flagged: %+v", h)
	}

	big := bigHistory(40) // well past 1000 tokens
	h = cm.Check(big)
	if !h.Warning || !h.NeedsCompaction {
		t.Errorf("oversized history not flagged: %+v", h)
	}
}

func TestContextManager_ApplyCompactsAndTracksStats(t *testing.T) {
	p := &fakeProvider{}
	cm := NewContextManager(p, &DropOldToolResults{KeepRecent: 1}, 100)

	msgs := bigHistory(20)
	out := cm.Apply(context.Background(), msgs)

	if p.CountMessageTokens(out) >= p.CountMessageTokens(msgs) {
		t.Error("Apply should reduce the token count")
	}
	count, savings := cm.Stats()
	if count != 1 {
		t.Errorf("compaction_count = %d, want 1", count)
	}
	if savings <= 0 {
		t.Errorf("last_savings_tokens = %d, want > 0", savings)
	}
}

func TestContextManager_ApplyNoOpUnderBudget(t *testing.T) {
	p := &fakeProvider{}
	cm := NewContextManager(p, &DropOldToolResults{KeepRecent: 1}, DefaultThresholdTokens)

	msgs := []llm.Message{llm.UserMessage("hi")}
	out := cm.Apply(context.Background(), msgs)
	if len(out) != 1 || out[0].Content != "hi" {
		t.Errorf("under-budget history must pass through unchanged: %+v", out)
	}
	if count, _ := cm.Stats(); count != 0 {
		t.Errorf("compaction_count = %d, want 0", count)
	}
}
