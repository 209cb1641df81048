package eval

// GradeResult is one grader's verdict on a trial's output.
type GradeResult struct {
	Grader string  `json:"grader"`
	Score  float64 `json:"score"` // in [0,1]
	Passed bool    `json:"passed"`
	Reason string  `json:"reason,omitempty"`
}

// TrialOutcome captures everything measured about one trial.
type TrialOutcome struct {
	TaskID      string `json:"task_id"`
	TrialID     string `json:"trial_id"`
	Success     bool   `json:"success"`
	FinalOutput string `json:"final_output,omitempty"`
	Error       string `json:"error,omitempty"`

	Grades     []GradeResult `json:"grades,omitempty"`
	FinalScore float64       `json:"final_score"`
	Passed     bool          `json:"passed"`

	Steps            int     `json:"steps"`
	InputTokens      int64   `json:"input_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
	ToolCallsCount   int     `json:"tool_calls_count"`

	Transcript []map[string]any `json:"transcript,omitempty"`
}

// TotalTokens is the trial's combined token usage.
func (o TrialOutcome) TotalTokens() int64 {
	return o.InputTokens + o.CompletionTokens
}
