// Package eval measures agent runs: task definitions, the trial runner,
// graders and pass@k metrics.
package eval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Task defines one evaluation case.
type Task struct {
	TaskID           string   `yaml:"task_id" json:"task_id"`
	Prompt           string   `yaml:"prompt" json:"prompt"`
	Category         string   `yaml:"category" json:"category"`
	ExpectedOutput   string   `yaml:"expected_output" json:"expected_output,omitempty"`
	ExpectedPatterns []string `yaml:"expected_patterns" json:"expected_patterns,omitempty"`
	GradingCriteria  []string `yaml:"grading_criteria" json:"grading_criteria,omitempty"`
	TestCode         string   `yaml:"test_code" json:"test_code,omitempty"`
	TestFile         string   `yaml:"test_file" json:"test_file,omitempty"`
	TimeoutSeconds   int      `yaml:"timeout_seconds" json:"timeout_seconds"`
	MaxSteps         int      `yaml:"max_steps" json:"max_steps"`
	EffortLevel      string   `yaml:"effort_level" json:"effort_level"`
	Difficulty       string   `yaml:"difficulty" json:"difficulty"`
	Tags             []string `yaml:"tags" json:"tags,omitempty"`
}

// taskFile is the YAML layout of a task suite.
type taskFile struct {
	Tasks []Task `yaml:"tasks"`
}

// LoadTasks reads a YAML task suite and applies defaults.
func LoadTasks(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("eval: read task file %q: %w", path, err)
	}
	var tf taskFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("eval: parse task file %q: %w", path, err)
	}
	for i := range tf.Tasks {
		applyDefaults(&tf.Tasks[i])
		if tf.Tasks[i].TaskID == "" {
			return nil, fmt.Errorf("eval: task %d in %q has no task_id", i, path)
		}
	}
	return tf.Tasks, nil
}

func applyDefaults(t *Task) {
	if t.TimeoutSeconds <= 0 {
		t.TimeoutSeconds = 300
	}
	if t.MaxSteps <= 0 {
		t.MaxSteps = 20
	}
	if t.EffortLevel == "" {
		t.EffortLevel = "medium"
	}
	if t.Difficulty == "" {
		t.Difficulty = "medium"
	}
}
