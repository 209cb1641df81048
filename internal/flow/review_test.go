package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// scriptedRunner replays canned outputs and records its prompts.
type scriptedRunner struct {
	outputs []string
	err     error
	calls   int
	prompts []string
	resets  int
}

func (r *scriptedRunner) Run(_ context.Context, request string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.prompts = append(r.prompts, request)
	out := "out of script"
	if r.calls < len(r.outputs) {
		out = r.outputs[r.calls]
	}
	r.calls++
	return out, nil
}

func (r *scriptedRunner) Reset() { r.resets++ }

func TestExtractGrade(t *testing.T) {
	cases := []struct {
		review string
		want   Grade
	}{
		{"Looks good.\nGRADE: PASS", GradePass},
		{"broken\ngrade: fail", GradeFail},
		{"Grade:Pass", GradePass},
		{"no verdict here", GradePass}, // ambiguity defaults to PASS
		{"GRADE: FAIL because GRADE mentioned twice", GradeFail},
	}
	for _, c := range cases {
		if got := ExtractGrade(c.review); got != c.want {
			t.Errorf("ExtractGrade(%q) = %q, want %q", c.review, got, c.want)
		}
	}
}

func TestReviewFlow_PassFirstIteration(t *testing.T) {
	doer := &scriptedRunner{outputs: []string{"answer v1"}}
	reviewer := &scriptedRunner{outputs: []string{"solid work\nGRADE: PASS"}}
	f := NewReviewFlow(doer, reviewer)

	res, err := f.Execute(context.Background(), "solve it")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Passed || res.Iterations != 1 || res.Output != "answer v1" {
		t.Errorf("result = %+v", res)
	}
	if doer.resets != 1 || reviewer.resets != 1 {
		t.Errorf("resets: doer=%d reviewer=%d, want 1 each", doer.resets, reviewer.resets)
	}
}

func TestReviewFlow_FeedbackDrivesRevision(t *testing.T) {
	doer := &scriptedRunner{outputs: []string{"v1", "v2"}}
	reviewer := &scriptedRunner{outputs: []string{"missing edge case\nGRADE: FAIL", "GRADE: PASS"}}
	f := NewReviewFlow(doer, reviewer)

	res, err := f.Execute(context.Background(), "solve it")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Passed || res.Iterations != 2 || res.Output != "v2" {
		t.Errorf("result = %+v", res)
	}
	second := doer.prompts[1]
	if !strings.Contains(second, "v1") || !strings.Contains(second, "missing edge case") {
		t.Errorf("revision prompt must carry previous output and feedback:\n%s", second)
	}
}

func TestReviewFlow_MaxIterationsReached(t *testing.T) {
	doer := &scriptedRunner{outputs: []string{"v1", "v2", "v3"}}
	reviewer := &scriptedRunner{outputs: []string{"GRADE: FAIL", "GRADE: FAIL", "GRADE: FAIL"}}
	f := NewReviewFlow(doer, reviewer)

	res, err := f.Execute(context.Background(), "solve it")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Passed {
		t.Error("three failing reviews must not pass")
	}
	if res.Iterations != 3 || res.Output != "v3" {
		t.Errorf("result = %+v", res)
	}
}

func TestReviewFlow_DoerErrorPropagates(t *testing.T) {
	doer := &scriptedRunner{err: errors.New("doer down")}
	reviewer := &scriptedRunner{outputs: []string{"GRADE: PASS"}}
	f := NewReviewFlow(doer, reviewer)

	if _, err := f.Execute(context.Background(), "solve it"); err == nil {
		t.Error("doer error must propagate")
	}
}
