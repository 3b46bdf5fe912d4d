// Package scoring computes a deterministic risk score for a pull request
// from its diff metadata. No I/O, no randomness: the same input always
// yields the same score, level, and reasons.
package scoring

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Severity of a triggered rule.
type Severity string

const (
	SeverityMed  Severity = "MED"
	SeverityHigh Severity = "HIGH"
)

// Level is the coarse risk band derived from the score.
type Level string

const (
	LevelLow  Level = "LOW"
	LevelMed  Level = "MED"
	LevelHigh Level = "HIGH"
)

// Size thresholds. Exceeding the HIGH bound fires only the HIGH tier.
const (
	highFiles = 50
	medFiles  = 20
	highLines = 1000
	medLines  = 500
)

// Per-rule penalties and level bands.
const (
	penaltyHigh = 40
	penaltyMed  = 20

	levelLowMax = 30
	levelMedMax = 70

	maxScore   = 100
	maxReasons = 3
)

// criticalPath classifies a file path into a named higher-risk area.
type criticalPath struct {
	re   *regexp.Regexp
	name string
}

var criticalPaths = []criticalPath{
	{regexp.MustCompile(`(?i)auth|authentication|login|session`), "Authentication"},
	{regexp.MustCompile(`(?i)payment|payments|billing|invoice`), "Payments"},
	{regexp.MustCompile(`(?i)config|configuration|settings`), "Configuration"},
	{regexp.MustCompile(`(?i)infra|infrastructure|deploy|deployment`), "Infrastructure"},
	{regexp.MustCompile(`(?i)migration|migrations|schema`), "Migrations"},
	{regexp.MustCompile(`(?i)\.github/`), "GitHub Actions"},
}

var testPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)test`),
	regexp.MustCompile(`(?i)spec`),
	regexp.MustCompile(`(?i)__tests__`),
	regexp.MustCompile(`(?i)tests/`),
}

// CIStatus mirrors the source-control check state for a head commit.
type CIStatus string

const (
	CISuccess CIStatus = "success"
	CIFailure CIStatus = "failure"
	CIPending CIStatus = "pending"
	CIUnknown CIStatus = "unknown"
)

// Input is the per-job scoring input.
type Input struct {
	ChangedFiles     int
	Additions        int
	Deletions        int
	ChangedFilesList []string
	CIStatus         CIStatus
}

// Features is the snapshot persisted alongside the score.
type Features struct {
	FilesChanged         int      `json:"files_changed"`
	LinesChanged         int      `json:"lines_changed"`
	TouchesCriticalPaths bool     `json:"touches_critical_paths"`
	CriticalPathsTouched []string `json:"critical_paths_touched"`
	HasTestChanges       bool     `json:"has_test_changes"`
	CIStatus             string   `json:"ci_status,omitempty"`
}

// Result is the computed risk assessment.
type Result struct {
	Score    int      `json:"score"`
	Level    Level    `json:"level"`
	Reasons  []string `json:"reasons"`
	Features Features `json:"features"`
}

type triggered struct {
	reason   string
	severity Severity
}

// IsTestFile reports whether the path looks like a test file.
func IsTestFile(path string) bool {
	for _, re := range testPatterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// CriticalPathName returns the first matching critical-path class for the
// path, or "" if none matches. The pattern order is fixed.
func CriticalPathName(path string) string {
	for _, cp := range criticalPaths {
		if cp.re.MatchString(path) {
			return cp.name
		}
	}
	return ""
}

// Compute evaluates every rule against the input and returns the capped
// score, its level, and the top reasons sorted HIGH severity first.
func Compute(in Input) Result {
	linesChanged := in.Additions + in.Deletions

	var (
		rules          []triggered
		pathsTouched   []string
		hasTestChanges bool
	)
	for _, path := range in.ChangedFilesList {
		if name := CriticalPathName(path); name != "" && !contains(pathsTouched, name) {
			pathsTouched = append(pathsTouched, name)
		}
		if IsTestFile(path) {
			hasTestChanges = true
		}
	}

	// File-count tiers are mutually exclusive: only the higher one fires.
	switch {
	case in.ChangedFiles > highFiles:
		rules = append(rules, triggered{
			reason:   fmt.Sprintf("Large PR: %d files changed (threshold: %d)", in.ChangedFiles, highFiles),
			severity: SeverityHigh,
		})
	case in.ChangedFiles > medFiles:
		rules = append(rules, triggered{
			reason:   fmt.Sprintf("Medium PR: %d files changed (threshold: %d)", in.ChangedFiles, medFiles),
			severity: SeverityMed,
		})
	}

	switch {
	case linesChanged > highLines:
		rules = append(rules, triggered{
			reason:   fmt.Sprintf("Large PR: %d lines changed (threshold: %d)", linesChanged, highLines),
			severity: SeverityHigh,
		})
	case linesChanged > medLines:
		rules = append(rules, triggered{
			reason:   fmt.Sprintf("Medium PR: %d lines changed (threshold: %d)", linesChanged, medLines),
			severity: SeverityMed,
		})
	}

	if len(pathsTouched) > 1 {
		rules = append(rules, triggered{
			reason:   "Touches multiple critical paths: " + strings.Join(pathsTouched, ", "),
			severity: SeverityHigh,
		})
	} else if len(pathsTouched) == 1 {
		rules = append(rules, triggered{
			reason:   "Touches critical path: " + pathsTouched[0],
			severity: SeverityMed,
		})
	}

	if in.ChangedFiles > 0 && !hasTestChanges {
		rules = append(rules, triggered{
			reason:   "No test files changed",
			severity: SeverityMed,
		})
	}

	if in.CIStatus == CIFailure || in.CIStatus == CIUnknown {
		rules = append(rules, triggered{
			reason:   "CI status: " + string(in.CIStatus),
			severity: SeverityMed,
		})
	}

	score := 0
	for _, r := range rules {
		if r.severity == SeverityHigh {
			score += penaltyHigh
		} else {
			score += penaltyMed
		}
	}
	// Cap after summation, not per rule.
	if score > maxScore {
		score = maxScore
	}

	var level Level
	switch {
	case score <= levelLowMax:
		level = LevelLow
	case score <= levelMedMax:
		level = LevelMed
	default:
		level = LevelHigh
	}

	// HIGH reasons first; stable, so same-severity rules keep their
	// evaluation order.
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].severity == SeverityHigh && rules[j].severity != SeverityHigh
	})
	reasons := make([]string, 0, maxReasons)
	for _, r := range rules {
		if len(reasons) == maxReasons {
			break
		}
		reasons = append(reasons, r.reason)
	}

	return Result{
		Score:   score,
		Level:   level,
		Reasons: reasons,
		Features: Features{
			FilesChanged:         in.ChangedFiles,
			LinesChanged:         linesChanged,
			TouchesCriticalPaths: len(pathsTouched) > 0,
			CriticalPathsTouched: pathsTouched,
			HasTestChanges:       hasTestChanges,
			CIStatus:             string(in.CIStatus),
		},
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
