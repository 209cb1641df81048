package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/strandworks/strand/internal/llm"
)

// Grader scores a trial's final output against a task. Grading failures
// become failed GradeResults, never errors: they must not abort a trial.
type Grader interface {
	Name() string
	Grade(ctx context.Context, task Task, output string) GradeResult
}

// patternPassFraction is the share of expected patterns that must match.
const patternPassFraction = 0.8

// CodeGrader grades deterministically, trying in priority order: exact
// match, regex patterns, inline test code, then a test file.
type CodeGrader struct {
	Python string // python interpreter, default python3
}

func (g *CodeGrader) Name() string { return "code" }

func (g *CodeGrader) Grade(ctx context.Context, task Task, output string) GradeResult {
	switch {
	case task.ExpectedOutput != "":
		return g.gradeExact(task, output)
	case len(task.ExpectedPatterns) > 0:
		return g.gradePatterns(task, output)
	case task.TestCode != "":
		return g.gradeTestCode(ctx, task, output)
	case task.TestFile != "":
		return g.gradeTestFile(ctx, task)
	default:
		return GradeResult{Grader: g.Name(), Score: 0, Passed: false, Reason: "no grading criteria configured"}
	}
}

func (g *CodeGrader) gradeExact(task Task, output string) GradeResult {
	if strings.TrimSpace(output) == strings.TrimSpace(task.ExpectedOutput) {
		return GradeResult{Grader: g.Name(), Score: 1, Passed: true, Reason: "exact match"}
	}
	return GradeResult{Grader: g.Name(), Score: 0, Passed: false, Reason: "output does not match expected_output"}
}

func (g *CodeGrader) gradePatterns(task Task, output string) GradeResult {
	matched := 0
	var misses []string
	for _, p := range task.ExpectedPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			misses = append(misses, fmt.Sprintf("bad pattern %q: %v", p, err))
			continue
		}
		if re.MatchString(output) {
			matched++
		} else {
			misses = append(misses, p)
		}
	}
	score := float64(matched) / float64(len(task.ExpectedPatterns))
	passed := score >= patternPassFraction
	reason := fmt.Sprintf("%d/%d patterns matched", matched, len(task.ExpectedPatterns))
	if len(misses) > 0 {
		reason += "; missing: " + strings.Join(misses, ", ")
	}
	return GradeResult{Grader: g.Name(), Score: score, Passed: passed, Reason: reason}
}

// gradeTestCode runs task.TestCode in a Python subprocess with the trial
// output bound to `output`; the snippet sets `result` truthy on success.
func (g *CodeGrader) gradeTestCode(ctx context.Context, task Task, output string) GradeResult {
	quoted, err := json.Marshal(output)
	if err != nil {
		return GradeResult{Grader: g.Name(), Passed: false, Reason: fmt.Sprintf("encode output: %v", err)}
	}
	script := fmt.Sprintf("import json\noutput = json.loads(%s)\nresult = None\n%s\nprint('TEST_RESULT:', bool(result))",
		strconv.Quote(string(quoted)), task.TestCode)

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, g.python(), "-c", script)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return GradeResult{Grader: g.Name(), Passed: false, Reason: fmt.Sprintf("test_code failed: %v: %s", err, strings.TrimSpace(string(out)))}
	}
	if strings.Contains(string(out), "TEST_RESULT: True") {
		return GradeResult{Grader: g.Name(), Score: 1, Passed: true, Reason: "test_code passed"}
	}
	return GradeResult{Grader: g.Name(), Score: 0, Passed: false, Reason: "test_code reported failure"}
}

func (g *CodeGrader) gradeTestFile(ctx context.Context, task Task) GradeResult {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, g.python(), "-m", "pytest", "-q", task.TestFile)
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return GradeResult{Grader: g.Name(), Passed: false, Reason: "test_file timed out after 60s"}
	}
	if err != nil {
		return GradeResult{Grader: g.Name(), Score: 0, Passed: false, Reason: fmt.Sprintf("test_file failed: %s", strings.TrimSpace(string(out)))}
	}
	return GradeResult{Grader: g.Name(), Score: 1, Passed: true, Reason: "test_file passed"}
}

func (g *CodeGrader) python() string {
	if g.Python != "" {
		return g.Python
	}
	return "python3"
}

// ModelGrader asks a model to judge the output against the task's
// grading criteria and parses SCORE/PASSED/REASON lines.
type ModelGrader struct {
	Provider llm.Provider
}

func (g *ModelGrader) Name() string { return "model" }

const modelGraderTemplate = `You are grading an AI agent's output.

Task:
%s

Grading criteria:
%s

Agent output:
%s

Reply with exactly three lines:
SCORE: <a number between 0.0 and 1.0>
PASSED: <true or false>
REASON: <one sentence>`

func (g *ModelGrader) Grade(ctx context.Context, task Task, output string) GradeResult {
	criteria := "- Correctly completes the task"
	if len(task.GradingCriteria) > 0 {
		criteria = "- " + strings.Join(task.GradingCriteria, "\n- ")
	}
	prompt := fmt.Sprintf(modelGraderTemplate, task.Prompt, criteria, output)

	reply, err := g.Provider.Ask(ctx, []llm.Message{llm.UserMessage(prompt)}, nil)
	if err != nil {
		return GradeResult{Grader: g.Name(), Passed: false, Reason: fmt.Sprintf("grading model error: %v", err)}
	}
	return parseModelGrade(g.Name(), reply)
}

// parseModelGrade extracts SCORE/PASSED/REASON lines, clamping the
// score into [0,1].
func parseModelGrade(grader, reply string) GradeResult {
	res := GradeResult{Grader: grader}
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "SCORE:"):
			if v, err := strconv.ParseFloat(strings.TrimSpace(line[len("SCORE:"):]), 64); err == nil {
				if v < 0 {
					v = 0
				}
				if v > 1 {
					v = 1
				}
				res.Score = v
			}
		case strings.HasPrefix(upper, "PASSED:"):
			res.Passed = strings.Contains(strings.ToLower(line), "true")
		case strings.HasPrefix(upper, "REASON:"):
			res.Reason = strings.TrimSpace(line[len("REASON:"):])
		}
	}
	if res.Reason == "" {
		res.Reason = "no reason given"
	}
	return res
}
