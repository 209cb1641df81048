// Package flow composes agents into multi-agent patterns. ReviewFlow is
// the doer-critic iteration: one agent produces output, another grades
// it, and failed grades feed back into the next attempt.
package flow

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// DefaultMaxIterations bounds the doer-critic loop.
const DefaultMaxIterations = 3

// Runner is the slice of the agent surface the flow needs.
type Runner interface {
	Run(ctx context.Context, request string) (string, error)
	Reset()
}

// Grade is the extracted review verdict.
type Grade string

const (
	GradePass Grade = "PASS"
	GradeFail Grade = "FAIL"
)

// ReviewFlow iterates a doer and a reviewer until the reviewer passes
// the output or MaxIterations is reached.
type ReviewFlow struct {
	Doer          Runner
	Reviewer      Runner
	MaxIterations int
}

// NewReviewFlow creates a flow with the default iteration bound.
func NewReviewFlow(doer, reviewer Runner) *ReviewFlow {
	return &ReviewFlow{Doer: doer, Reviewer: reviewer, MaxIterations: DefaultMaxIterations}
}

// Result is the flow outcome.
type Result struct {
	Output     string
	Review     string
	Iterations int
	Passed     bool
}

// Execute runs the doer-critic loop on the given prompt.
func (f *ReviewFlow) Execute(ctx context.Context, prompt string) (*Result, error) {
	maxIter := f.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	var output, feedback string
	for i := 1; i <= maxIter; i++ {
		doerPrompt := prompt
		if feedback != "" {
			doerPrompt = fmt.Sprintf(
				"%s\n\nYour previous attempt:\n%s\n\nReviewer feedback:\n%s\n\nRevise your work to address the feedback.",
				prompt, output, feedback)
		}

		var err error
		output, err = f.Doer.Run(ctx, doerPrompt)
		if err != nil {
			return nil, fmt.Errorf("flow: doer iteration %d: %w", i, err)
		}
		f.Doer.Reset()

		reviewPrompt := fmt.Sprintf(
			"Review the following output for the task.\n\nTask:\n%s\n\nOutput:\n%s\n\n"+
				"End your review with a line reading exactly GRADE: PASS or GRADE: FAIL.",
			prompt, output)
		review, err := f.Reviewer.Run(ctx, reviewPrompt)
		if err != nil {
			return nil, fmt.Errorf("flow: reviewer iteration %d: %w", i, err)
		}
		f.Reviewer.Reset()

		if ExtractGrade(review) == GradePass {
			return &Result{Output: output, Review: review, Iterations: i, Passed: true}, nil
		}
		log.Printf("[Review] Iteration %d failed review, revising", i)
		feedback = review
	}

	return &Result{
		Output:     output,
		Review:     feedback,
		Iterations: maxIter,
		Passed:     false,
	}, nil
}

// ExtractGrade scans review text for GRADE: PASS or GRADE: FAIL,
// case-insensitively. Ambiguous reviews default to PASS with a warning.
func ExtractGrade(review string) Grade {
	upper := strings.ToUpper(review)
	switch {
	case strings.Contains(upper, "GRADE: FAIL"), strings.Contains(upper, "GRADE:FAIL"):
		return GradeFail
	case strings.Contains(upper, "GRADE: PASS"), strings.Contains(upper, "GRADE:PASS"):
		return GradePass
	default:
		log.Printf("[Review] No explicit grade found, defaulting to PASS")
		return GradePass
	}
}
