package scm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v61/github"

	"prsentry/internal/analyst"
)

// commentListLimit keeps posted comments short; the full lists stay in the
// stored analysis.
const commentListLimit = 3

// FormatAnalysisComment renders the validated AI output as a markdown
// review comment.
func FormatAnalysisComment(out analyst.Output) string {
	var b strings.Builder

	b.WriteString("## 🤖 AI Risk Analysis\n\n")
	fmt.Fprintf(&b, "**Summary:** %s\n\n", out.Summary)

	b.WriteString("### 🔍 Review Focus\n")
	for _, item := range truncateList(out.ReviewFocus, commentListLimit) {
		fmt.Fprintf(&b, "- %s\n", item)
	}

	b.WriteString("\n### 🧪 Test Suggestions\n")
	for _, item := range truncateList(out.TestSuggestions, commentListLimit) {
		fmt.Fprintf(&b, "- %s\n", item)
	}

	fmt.Fprintf(&b, "\n**Rollback Risk:** %s  \n", out.RollbackRisk)
	fmt.Fprintf(&b, "**Confidence:** %.0f%%\n", out.Confidence*100)

	if len(out.Warnings) > 0 {
		b.WriteString("\n**⚠️ Warnings:**\n")
		for _, w := range out.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	return b.String()
}

// PostAnalysisComment posts the formatted analysis on the PR under the
// same retry policy as the retriever.
func (s *Service) PostAnalysisComment(ctx context.Context, installationID int64, owner, name string, number int, out analyst.Output) error {
	body := FormatAnalysisComment(out)
	err := s.withClient(ctx, installationID, func(cli *github.Client) error {
		_, _, err := cli.Issues.CreateComment(ctx, owner, name, number, &github.IssueComment{
			Body: github.String(body),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("post comment %s/%s#%d: %w", owner, name, number, err)
	}
	return nil
}

func truncateList(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
