package eval

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/strandworks/strand/internal/agent"
	"github.com/strandworks/strand/internal/llm"
)

// TrialRunner runs tasks against agents and grades the results.
type TrialRunner struct {
	Graders []Grader
}

// NewTrialRunner creates a runner with the given graders, applied in order.
func NewTrialRunner(graders ...Grader) *TrialRunner {
	return &TrialRunner{Graders: graders}
}

// RunTrial configures the agent from the task, runs it under the task's
// wall-clock timeout, and grades the final output.
func (r *TrialRunner) RunTrial(ctx context.Context, task Task, a *agent.ToolCallAgent, trialID string) TrialOutcome {
	a.MaxSteps = task.MaxSteps
	a.EffortLevel = task.EffortLevel

	outcome := TrialOutcome{TaskID: task.TaskID, TrialID: trialID}

	timeout := time.Duration(task.TimeoutSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startInput := a.Provider.TotalInputTokens()
	startCompletion := a.Provider.TotalCompletionTokens()
	start := time.Now()

	type runResult struct {
		err error
	}
	done := make(chan runResult, 1)
	go func() {
		_, err := a.Run(runCtx, task.Prompt)
		done <- runResult{err: err}
	}()

	var runErr error
	select {
	case res := <-done:
		runErr = res.err
	case <-runCtx.Done():
		// Give the cancelled run a moment to unwind through the provider.
		joined := false
		select {
		case <-done:
			joined = true
		case <-time.After(5 * time.Second):
		}
		outcome.ElapsedSeconds = time.Since(start).Seconds()
		outcome.Error = fmt.Sprintf("Timeout after %ds", task.TimeoutSeconds)
		outcome.Success = false
		if joined {
			// Only touch the agent once its run goroutine has exited;
			// an abandoned run may still be writing agent state.
			a.Reset()
		}
		r.fillUsage(&outcome, a, startInput, startCompletion)
		return outcome
	}

	outcome.ElapsedSeconds = time.Since(start).Seconds()
	if runErr != nil {
		outcome.Success = false
		outcome.Error = runErr.Error()
	} else {
		outcome.Success = true
	}

	messages := a.Memory.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleAssistant && messages[i].Content != "" {
			outcome.FinalOutput = messages[i].Content
			break
		}
	}
	for _, m := range messages {
		outcome.Transcript = append(outcome.Transcript, m.ToMap())
		if m.Role == llm.RoleTool {
			outcome.ToolCallsCount++
		}
	}
	if s := a.LastRunSummary(); s != nil {
		outcome.Steps = s.Steps
	}
	r.fillUsage(&outcome, a, startInput, startCompletion)

	if outcome.Success {
		r.grade(ctx, task, &outcome)
	}
	return outcome
}

func (r *TrialRunner) fillUsage(o *TrialOutcome, a *agent.ToolCallAgent, startInput, startCompletion int64) {
	o.InputTokens = a.Provider.TotalInputTokens() - startInput
	o.CompletionTokens = a.Provider.TotalCompletionTokens() - startCompletion
}

func (r *TrialRunner) grade(ctx context.Context, task Task, o *TrialOutcome) {
	if len(r.Graders) == 0 {
		o.Passed = o.Success
		return
	}
	sum := 0.0
	allPassed := true
	for _, g := range r.Graders {
		gr := g.Grade(ctx, task, o.FinalOutput)
		o.Grades = append(o.Grades, gr)
		sum += gr.Score
		allPassed = allPassed && gr.Passed
	}
	o.FinalScore = sum / float64(len(r.Graders))
	o.Passed = allPassed
}

// RunTrials runs n independent trials of one task, at most parallel at a
// time. factory must return a fresh agent with its own provider per
// trial; token usage is computed from that provider's counters.
func (r *TrialRunner) RunTrials(ctx context.Context, task Task, n, parallel int, factory func() (*agent.ToolCallAgent, error)) []TrialOutcome {
	if parallel <= 0 {
		parallel = 1
	}
	outcomes := make([]TrialOutcome, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			trialID := fmt.Sprintf("%s-t%d", task.TaskID, i+1)
			a, err := factory()
			if err != nil {
				outcomes[i] = TrialOutcome{TaskID: task.TaskID, TrialID: trialID, Error: err.Error()}
				return nil
			}
			outcomes[i] = r.RunTrial(gctx, task, a, trialID)
			log.Printf("[Eval] %s: success=%v passed=%v score=%.2f",
				trialID, outcomes[i].Success, outcomes[i].Passed, outcomes[i].FinalScore)
			return nil
		})
	}
	g.Wait()
	return outcomes
}
