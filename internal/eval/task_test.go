package eval

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleSuite = `
tasks:
  - task_id: fib
    prompt: "Write a fibonacci function"
    category: code
    expected_patterns: ["def fib", "return"]
    difficulty: easy
    tags: [python, basics]
  - task_id: sum
    prompt: "Sum 1..100"
    expected_output: "5050"
    max_steps: 8
    timeout_seconds: 60
    effort_level: high
`

func TestLoadTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	if err := os.WriteFile(path, []byte(sampleSuite), 0o644); err != nil {
		t.Fatal(err)
	}

	tasks, err := LoadTasks(path)
	if err != nil {
		t.Fatalf("LoadTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks", len(tasks))
	}

	fib := tasks[0]
	if fib.TaskID != "fib" || fib.Category != "code" || len(fib.ExpectedPatterns) != 2 {
		t.Errorf("fib = %+v", fib)
	}
	// Defaults applied.
	if fib.TimeoutSeconds != 300 || fib.MaxSteps != 20 || fib.EffortLevel != "medium" {
		t.Errorf("fib defaults = %+v", fib)
	}

	sum := tasks[1]
	if sum.MaxSteps != 8 || sum.TimeoutSeconds != 60 || sum.EffortLevel != "high" {
		t.Errorf("sum = %+v", sum)
	}
}

func TestLoadTasks_MissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("tasks:\n  - prompt: x\n"), 0o644)
	if _, err := LoadTasks(path); err == nil {
		t.Error("task without task_id must fail")
	}
}
