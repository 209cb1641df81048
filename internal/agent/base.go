package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/strandworks/strand/internal/llm"
	"github.com/strandworks/strand/internal/memory"
	"github.com/strandworks/strand/internal/record"
	"github.com/strandworks/strand/internal/util"
)

// effortTable maps an effort level to the per-run step ceiling it
// guarantees. Unknown non-empty levels fall back to medium.
var effortTable = map[string]int{
	"low":    10,
	"medium": 20,
	"high":   50,
}

const (
	// DefaultDuplicateThreshold is the stuck-detection repeat count.
	DefaultDuplicateThreshold = 2

	stuckPrompt = "Observed duplicate responses. Consider new strategies and avoid repeating approaches that have already been tried.\n"

	reflectionMarker = "[Reflection checkpoint]"
	reflectionPrompt = reflectionMarker + " Pause and reassess: is the current approach working? " +
		"Summarize progress so far, identify what is blocking you, and adjust the plan before continuing."

	reflectionInterval = 5

	finalPreviewRunes = 500
)

// Stepper is implemented by agent specializations; Step runs one
// iteration of the loop and returns observational text.
type Stepper interface {
	Step(ctx context.Context) (string, error)
}

// RunSummary is the snapshot returned to callers when a run ends.
type RunSummary struct {
	Steps        int    `json:"steps"`
	Messages     int    `json:"messages"`
	ToolCalls    int    `json:"tool_calls"`
	State        string `json:"state"`
	FinalPreview string `json:"final_preview"`
	LLM          *struct {
		InputTokens      int64 `json:"input_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"llm,omitempty"`
}

// Hooks receive run events as they happen, used by the streaming gateway.
// All fields are optional.
type Hooks struct {
	OnMessage    func(msg llm.Message)
	OnStep       func(step, maxSteps int)
	OnToolCall   func(name string, arguments string)
	OnToolResult func(name, output string, isError bool)
}

// Base implements the step loop and state machine shared by all agents.
// A specialization provides the Stepper; Base owns memory, state,
// effort limits, stuck detection and event recording.
type Base struct {
	Name           string
	SystemPrompt   string
	NextStepPrompt string

	MaxSteps           int
	EffortLevel        string // "", "low", "medium", "high"
	DuplicateThreshold int

	HighEffortMode   bool
	EnableReflection bool

	Memory      *Memory
	State       State
	CurrentStep int

	Provider       llm.Provider
	Recorder       *record.Recorder
	ContextManager *memory.ContextManager
	Hooks          Hooks

	stepper        Stepper
	lastRunSummary *RunSummary
}

// NewBase creates an idle agent shell. The specialization must call
// SetStepper before Run.
func NewBase(name string, provider llm.Provider) *Base {
	return &Base{
		Name:               name,
		Memory:             NewMemory(),
		State:              StateIdle,
		Provider:           provider,
		DuplicateThreshold: DefaultDuplicateThreshold,
	}
}

// SetStepper wires the specialization's step implementation.
func (b *Base) SetStepper(s Stepper) { b.stepper = s }

// EffectiveMaxSteps is the per-run step ceiling. When an effort level is
// configured it guarantees at least the table value; otherwise MaxSteps
// applies as-is (so MaxSteps=0 with no effort level runs zero steps).
func (b *Base) EffectiveMaxSteps() int {
	if b.EffortLevel == "" {
		return b.MaxSteps
	}
	e, ok := effortTable[b.EffortLevel]
	if !ok {
		log.Printf("[%s] Unknown effort level %q, using medium", b.Name, b.EffortLevel)
		e = effortTable["medium"]
	}
	if b.MaxSteps > e {
		return b.MaxSteps
	}
	return e
}

// transition moves the state machine, rejecting unknown states.
func (b *Base) transition(to State) error {
	if !validState(to) {
		return &ErrIllegalState{Op: "transition to " + string(to), State: b.State}
	}
	b.State = to
	return nil
}

// AppendMessage adds a message to memory and fires the message hook.
func (b *Base) AppendMessage(msg llm.Message) {
	b.Memory.Add(msg)
	if b.Hooks.OnMessage != nil {
		b.Hooks.OnMessage(msg)
	}
	if b.Recorder != nil {
		b.Recorder.Record(record.EventMessage, msg.ToMap())
	}
}

// Run executes the step loop until the stepper sets FINISHED or the
// step ceiling is reached, and returns the accumulated step log.
func (b *Base) Run(ctx context.Context, request string) (string, error) {
	if b.State != StateIdle {
		return "", &ErrIllegalState{Op: "run", State: b.State}
	}
	if b.stepper == nil {
		return "", fmt.Errorf("agent %s: no stepper configured", b.Name)
	}

	maxSteps := b.EffectiveMaxSteps()
	if b.Recorder != nil {
		b.Recorder.Record(record.EventRunStart, map[string]any{
			"agent":     b.Name,
			"request":   util.Preview(request, finalPreviewRunes),
			"max_steps": maxSteps,
		})
	}

	if b.SystemPrompt != "" && b.Memory.Len() == 0 {
		b.AppendMessage(llm.SystemMessage(b.SystemPrompt))
	}
	if request != "" {
		b.AppendMessage(llm.UserMessage(request))
	}

	b.transition(StateRunning)

	var results []string
	for b.CurrentStep < maxSteps && b.State != StateFinished {
		b.CurrentStep++

		b.compactIfNeeded(ctx)
		b.reflectionCheckpoint()

		if b.Hooks.OnStep != nil {
			b.Hooks.OnStep(b.CurrentStep, maxSteps)
		}
		if b.Recorder != nil {
			b.Recorder.Record(record.EventStepStart, map[string]any{"step": b.CurrentStep})
		}

		result, err := b.stepper.Step(ctx)
		if err != nil {
			b.transition(StateError)
			summary := b.snapshotSummary()
			b.lastRunSummary = &summary
			if b.Recorder != nil {
				b.Recorder.Record(record.EventRunEnd, summary)
			}
			b.State = StateIdle
			b.CurrentStep = 0
			return "", fmt.Errorf("agent %s: step %d: %w", b.Name, b.CurrentStep, err)
		}

		if b.Recorder != nil {
			b.Recorder.Record(record.EventStepEnd, map[string]any{
				"step":   b.CurrentStep,
				"result": util.Preview(result, finalPreviewRunes),
			})
		}

		if b.IsStuck() {
			b.handleStuck()
		}

		results = append(results, fmt.Sprintf("Step %d: %s", b.CurrentStep, result))
	}

	if b.State != StateFinished && b.CurrentStep >= maxSteps {
		b.CurrentStep = 0
		results = append(results, fmt.Sprintf("Terminated: Reached max steps (%d)", maxSteps))
	}

	summary := b.snapshotSummary()
	b.lastRunSummary = &summary
	if b.Recorder != nil {
		b.Recorder.Record(record.EventRunEnd, summary)
	}
	b.State = StateIdle
	return strings.Join(results, "\n"), nil
}

// compactIfNeeded applies the context manager. Compaction failures must
// not abort the run.
func (b *Base) compactIfNeeded(ctx context.Context) {
	if b.ContextManager == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] Compaction panic ignored: %v", b.Name, r)
		}
	}()
	b.Memory.Replace(b.ContextManager.Apply(ctx, b.Memory.Messages()))
}

// reflectionCheckpoint inserts a single reflection system message every
// reflectionInterval steps, replacing any prior checkpoint.
func (b *Base) reflectionCheckpoint() {
	if !b.HighEffortMode || !b.EnableReflection {
		return
	}
	if b.CurrentStep == 0 || b.CurrentStep%reflectionInterval != 0 {
		return
	}
	b.Memory.ReplaceTaggedSystem(reflectionMarker, llm.SystemMessage(reflectionPrompt))
	log.Printf("[%s] Reflection checkpoint at step %d", b.Name, b.CurrentStep)
}

// IsStuck reports whether the most recent assistant message's content
// has appeared at least DuplicateThreshold times before.
func (b *Base) IsStuck() bool {
	last, ok := b.Memory.LastAssistant()
	if !ok || last.Content == "" {
		return false
	}
	threshold := b.DuplicateThreshold
	if threshold <= 0 {
		threshold = DefaultDuplicateThreshold
	}

	messages := b.Memory.Messages()
	lastIdx := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleAssistant {
			lastIdx = i
			break
		}
	}

	duplicates := 0
	for i := 0; i < lastIdx; i++ {
		if messages[i].Role == llm.RoleAssistant && messages[i].Content == last.Content {
			duplicates++
		}
	}
	return duplicates >= threshold
}

// handleStuck prepends the stuck prefix to the next-step prompt.
// A prior prefix is not duplicated.
func (b *Base) handleStuck() {
	if strings.HasPrefix(b.NextStepPrompt, stuckPrompt) {
		return
	}
	b.NextStepPrompt = stuckPrompt + b.NextStepPrompt
	log.Printf("[%s] Stuck state detected, nudging toward a new strategy", b.Name)
}

// snapshotSummary captures the run summary before state restoration.
func (b *Base) snapshotSummary() RunSummary {
	messages := b.Memory.Messages()

	toolCalls := 0
	finalPreview := ""
	for _, m := range messages {
		if m.Role == llm.RoleAssistant {
			toolCalls += len(m.ToolCalls)
			if m.Content != "" {
				finalPreview = m.Content
			}
		}
	}

	s := RunSummary{
		Steps:        b.CurrentStep,
		Messages:     len(messages),
		ToolCalls:    toolCalls,
		State:        string(b.State),
		FinalPreview: util.Preview(finalPreview, finalPreviewRunes),
	}
	if b.Provider != nil {
		s.LLM = &struct {
			InputTokens      int64 `json:"input_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		}{
			InputTokens:      b.Provider.TotalInputTokens(),
			CompletionTokens: b.Provider.TotalCompletionTokens(),
		}
	}
	return s
}

// LastRunSummary returns the summary of the most recent run, or nil
// before any run.
func (b *Base) LastRunSummary() *RunSummary {
	return b.lastRunSummary
}

// Reset returns the agent to a clean IDLE state without touching memory.
func (b *Base) Reset() {
	b.State = StateIdle
	b.CurrentStep = 0
}
