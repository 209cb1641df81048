package memory

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/strandworks/strand/internal/llm"
)

// Strategy is a pure transform over a message list. Implementations never
// mutate the input slice; they return a new list with fewer tokens.
type Strategy interface {
	Name() string
	Compact(ctx context.Context, messages []llm.Message) []llm.Message
}

// ── drop old tool results ──

// DropOldToolResults keeps the most recent KeepRecent tool-role messages
// and replaces older ones with a short placeholder, unless the tool name
// is excluded. The message itself stays so every tool_call_id keeps its
// reply; a message is only rewritten when that makes it smaller.
type DropOldToolResults struct {
	KeepRecent int
	Exclude    []string
}

func (s *DropOldToolResults) Name() string { return "drop_old_tool_results" }

func (s *DropOldToolResults) Compact(_ context.Context, messages []llm.Message) []llm.Message {
	keep := s.KeepRecent
	if keep <= 0 {
		keep = 5
	}

	// Index tool messages newest-first to find which ones to preserve.
	preserved := make(map[int]bool)
	count := 0
	for i := len(messages) - 1; i >= 0 && count < keep; i-- {
		if messages[i].Role == llm.RoleTool {
			preserved[i] = true
			count++
		}
	}

	out := make([]llm.Message, 0, len(messages))
	for i, m := range messages {
		if m.Role == llm.RoleTool && !preserved[i] && !s.excluded(m.Name) {
			placeholder := fmt.Sprintf("[older %s result dropped]", m.Name)
			if len(placeholder) < len(m.Content) || m.Base64Image != "" {
				trimmed := m
				trimmed.Content = placeholder
				trimmed.Base64Image = ""
				out = append(out, trimmed)
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

func (s *DropOldToolResults) excluded(name string) bool {
	for _, e := range s.Exclude {
		if e == name {
			return true
		}
	}
	return false
}

// ── strip reasoning ──

// MarkerPair delimits a strippable reasoning region, e.g.
// {"<thinking>", "</thinking>"}.
type MarkerPair struct {
	Start string
	End   string
}

// StripReasoning removes marker-delimited regions from assistant messages
// older than the most recent KeepRecentAssistant assistant turns.
type StripReasoning struct {
	Markers             []MarkerPair
	KeepRecentAssistant int
}

func (s *StripReasoning) Name() string { return "strip_reasoning" }

func (s *StripReasoning) Compact(_ context.Context, messages []llm.Message) []llm.Message {
	keep := s.KeepRecentAssistant
	if keep <= 0 {
		keep = 2
	}
	markers := s.Markers
	if len(markers) == 0 {
		markers = []MarkerPair{{"<thinking>", "</thinking>"}}
	}

	recent := make(map[int]bool)
	count := 0
	for i := len(messages) - 1; i >= 0 && count < keep; i-- {
		if messages[i].Role == llm.RoleAssistant {
			recent[i] = true
			count++
		}
	}

	out := make([]llm.Message, 0, len(messages))
	for i, m := range messages {
		if m.Role == llm.RoleAssistant && !recent[i] {
			stripped := m
			stripped.Content = stripRegions(m.Content, markers)
			out = append(out, stripped)
			continue
		}
		out = append(out, m)
	}
	return out
}

// stripRegions removes every start..end region, keeping surrounding text.
// Unterminated regions are left untouched.
func stripRegions(content string, markers []MarkerPair) string {
	for _, mp := range markers {
		for {
			start := strings.Index(content, mp.Start)
			if start < 0 {
				break
			}
			end := strings.Index(content[start:], mp.End)
			if end < 0 {
				break
			}
			content = content[:start] + content[start+end+len(mp.End):]
		}
	}
	return strings.TrimSpace(content)
}

// ── selective retention ──

// SelectiveRetention keeps system messages, all user messages, and the
// last 2*KeepTurns messages, merged in original order.
type SelectiveRetention struct {
	KeepTurns int
}

func (s *SelectiveRetention) Name() string { return "selective_retention" }

func (s *SelectiveRetention) Compact(_ context.Context, messages []llm.Message) []llm.Message {
	turns := s.KeepTurns
	if turns <= 0 {
		turns = 5
	}
	tailStart := len(messages) - 2*turns
	if tailStart < 0 {
		tailStart = 0
	}

	out := make([]llm.Message, 0, len(messages))
	for i, m := range messages {
		switch {
		case m.Role == llm.RoleSystem, m.Role == llm.RoleUser, i >= tailStart:
			out = append(out, m)
		}
	}
	return out
}

// ── model summarization ──

const summaryPrompt = `Summarize the conversation so far into these five sections:

## Task Overview
## Current State
## Important Discoveries
## Next Steps
## Context to Preserve

Be specific about file names, decisions and partial results. Wrap the whole
summary in <summary> and </summary> tags.`

// Summarize asks the model for a structured summary and replaces the
// history with [system (if any), user(summary)]. On model failure it
// falls back to selective retention.
type Summarize struct {
	Provider llm.Provider
	Fallback *SelectiveRetention
}

func (s *Summarize) Name() string { return "summarize" }

func (s *Summarize) Compact(ctx context.Context, messages []llm.Message) []llm.Message {
	fallback := s.Fallback
	if fallback == nil {
		fallback = &SelectiveRetention{}
	}
	if s.Provider == nil || len(messages) == 0 {
		return fallback.Compact(ctx, messages)
	}

	request := append(copyMessages(messages), llm.UserMessage(summaryPrompt))
	text, err := s.Provider.Ask(ctx, request, nil)
	if err != nil {
		log.Printf("[Compaction] Summarize failed, falling back to selective retention: %v", err)
		return fallback.Compact(ctx, messages)
	}

	summary := extractSummary(text)
	out := make([]llm.Message, 0, 2)
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			out = append(out, m)
			break
		}
	}
	out = append(out, llm.UserMessage(summary+"\n\nContinue from this context."))
	return out
}

// extractSummary returns the <summary>...</summary> block, re-wrapping
// the whole reply when the model omitted the tags.
func extractSummary(text string) string {
	start := strings.Index(text, "<summary>")
	end := strings.Index(text, "</summary>")
	if start >= 0 && end > start {
		return text[start : end+len("</summary>")]
	}
	return "<summary>" + strings.TrimSpace(text) + "</summary>"
}

// ── composite ──

// Composite applies its strategies in order.
type Composite struct {
	Strategies []Strategy
}

func (s *Composite) Name() string { return "composite" }

func (s *Composite) Compact(ctx context.Context, messages []llm.Message) []llm.Message {
	out := copyMessages(messages)
	for _, st := range s.Strategies {
		out = st.Compact(ctx, out)
	}
	return out
}

func copyMessages(messages []llm.Message) []llm.Message {
	out := make([]llm.Message, len(messages))
	copy(out, messages)
	return out
}
