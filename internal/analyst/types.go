// Package analyst turns a scored pull request into a validated AI risk
// analysis: it builds a bounded, secret-free prompt, calls the configured
// LLM, and enforces the output schema before anything is persisted.
package analyst

import (
	"prsentry/internal/scoring"
)

// FileDiff is one risky file's unified diff plus its churn.
type FileDiff struct {
	Filename  string `json:"filename"`
	Patch     string `json:"patch"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Input is everything the prompt may reference. The model is instructed
// to ground its answer in these fields only.
type Input struct {
	Score        int           `json:"score"`
	Level        scoring.Level `json:"level"`
	Reasons      []string      `json:"reasons"`
	ChangedFiles []string      `json:"changed_files"`
	FileDiffs    []FileDiff    `json:"file_diffs"`
}

// Output is the schema the model must produce. Confidence is not tagged
// required: 0.0 is a legal value.
type Output struct {
	Summary         string   `json:"summary" validate:"required,min=10,max=500"`
	ReviewFocus     []string `json:"review_focus" validate:"required,min=3,max=5,dive,min=5,max=200"`
	TestSuggestions []string `json:"test_suggestions" validate:"required,min=3,max=6,dive,min=5,max=200"`
	RollbackRisk    string   `json:"rollback_risk" validate:"required,oneof=LOW MED HIGH"`
	Confidence      float64  `json:"confidence" validate:"min=0,max=1"`
	Warnings        []string `json:"warnings,omitempty"`
}
