package scoring

import "sort"

// criticalWeight dominates churn for typical diffs; a non-critical file
// outranks a critical one only when its churn exceeds this weight. That is
// the intended trade-off.
const criticalWeight = 200

// maxRiskyFiles bounds how many files are forwarded for diff-level
// analysis.
const maxRiskyFiles = 3

// Churn is a file's added and deleted line counts.
type Churn struct {
	Additions int
	Deletions int
}

// FileRisk is a changed file ranked for deeper inspection.
type FileRisk struct {
	Filename   string `json:"filename"`
	RiskScore  int    `json:"risk_score"`
	IsCritical bool   `json:"is_critical"`
	Churn      int    `json:"churn"`
}

// SelectRiskyFiles ranks changed files by critical-path membership plus
// churn and returns the top 3. Files missing from churn count as zero
// churn. The sort is stable, so ties keep input order.
func SelectRiskyFiles(changedFiles []string, churn map[string]Churn) []FileRisk {
	scored := make([]FileRisk, 0, len(changedFiles))
	for _, name := range changedFiles {
		c := churn[name]
		total := c.Additions + c.Deletions
		critical := CriticalPathName(name) != ""

		score := total
		if critical {
			score += criticalWeight
		}
		scored = append(scored, FileRisk{
			Filename:   name,
			RiskScore:  score,
			IsCritical: critical,
			Churn:      total,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RiskScore > scored[j].RiskScore
	})
	if len(scored) > maxRiskyFiles {
		scored = scored[:maxRiskyFiles]
	}
	return scored
}
