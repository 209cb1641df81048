package eval

import "math"

// PassAtK estimates the probability that at least one of k independent
// samples succeeds, given n observed trials with c successes:
// 1 - C(n-c, k) / C(n, k).
func PassAtK(n, c, k int) float64 {
	if n <= 0 || k <= 0 {
		return 0
	}
	if n < k {
		if c > 0 {
			return 1
		}
		return 0
	}
	if n-c < k {
		return 1
	}
	// Product form avoids large binomials:
	// C(n-c,k)/C(n,k) = prod_{i=0..k-1} (n-c-i)/(n-i).
	ratio := 1.0
	for i := 0; i < k; i++ {
		ratio *= float64(n-c-i) / float64(n-i)
	}
	return 1 - ratio
}

// TokenEfficiency is the mean total tokens per successful trial.
// +Inf when there are no successes.
func TokenEfficiency(outcomes []TrialOutcome) float64 {
	var tokens int64
	successes := 0
	for _, o := range outcomes {
		if o.Passed {
			tokens += o.TotalTokens()
			successes++
		}
	}
	if successes == 0 {
		return math.Inf(1)
	}
	return float64(tokens) / float64(successes)
}

// GroupStats is the success tally for one category or difficulty.
type GroupStats struct {
	Total       int     `json:"total"`
	Passed      int     `json:"passed"`
	SuccessRate float64 `json:"success_rate"`
}

// Aggregate summarizes a batch of trial outcomes.
type Aggregate struct {
	Total        int                   `json:"total"`
	Passed       int                   `json:"passed"`
	SuccessRate  float64               `json:"success_rate"`
	MeanScore    float64               `json:"mean_score"`
	ByCategory   map[string]GroupStats `json:"by_category"`
	ByDifficulty map[string]GroupStats `json:"by_difficulty"`
}

// Summarize aggregates outcomes, using tasks to resolve category and
// difficulty by task_id.
func Summarize(outcomes []TrialOutcome, tasks []Task) Aggregate {
	byID := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		byID[t.TaskID] = t
	}

	agg := Aggregate{
		ByCategory:   make(map[string]GroupStats),
		ByDifficulty: make(map[string]GroupStats),
	}
	var scoreSum float64
	for _, o := range outcomes {
		agg.Total++
		scoreSum += o.FinalScore
		if o.Passed {
			agg.Passed++
		}
		task := byID[o.TaskID]
		bump(agg.ByCategory, task.Category, o.Passed)
		bump(agg.ByDifficulty, task.Difficulty, o.Passed)
	}
	if agg.Total > 0 {
		agg.SuccessRate = float64(agg.Passed) / float64(agg.Total)
		agg.MeanScore = scoreSum / float64(agg.Total)
	}
	return agg
}

func bump(m map[string]GroupStats, key string, passed bool) {
	if key == "" {
		key = "uncategorized"
	}
	s := m[key]
	s.Total++
	if passed {
		s.Passed++
	}
	s.SuccessRate = float64(s.Passed) / float64(s.Total)
	m[key] = s
}
