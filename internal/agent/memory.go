package agent

import (
	"strings"
	"sync"

	"github.com/strandworks/strand/internal/llm"
)

// Memory is the agent's insertion-ordered conversation history. Messages
// are immutable once appended; compaction swaps in a rebuilt list via
// Replace rather than editing in place.
type Memory struct {
	mu       sync.Mutex
	messages []llm.Message
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{}
}

// Add appends a message.
func (m *Memory) Add(msg llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

// Messages returns a snapshot of the history.
func (m *Memory) Messages() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Replace swaps the whole history, used after compaction.
func (m *Memory) Replace(messages []llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = messages
}

// Len returns the number of messages.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// Clear empties the memory.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// LastAssistant returns the most recent assistant message, if any.
func (m *Memory) LastAssistant() (llm.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Role == llm.RoleAssistant {
			return m.messages[i], true
		}
	}
	return llm.Message{}, false
}

// ReplaceTaggedSystem removes any system message whose content starts
// with marker and appends msg. Used for the reflection checkpoint,
// which must not accumulate.
func (m *Memory) ReplaceTaggedSystem(marker string, msg llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.messages[:0:0]
	for _, existing := range m.messages {
		if existing.Role == llm.RoleSystem && strings.HasPrefix(existing.Content, marker) {
			continue
		}
		kept = append(kept, existing)
	}
	m.messages = append(kept, msg)
}
