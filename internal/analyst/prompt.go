package analyst

import (
	"fmt"
	"strings"

	"prsentry/internal/redact"
)

const (
	// maxDiffChars bounds the total diff content across all files in one
	// prompt. The budget is shared: earlier files eat into what later
	// files may use.
	maxDiffChars = 6000

	truncationMarker = "\n... [truncated]"

	systemInstruction = "You are a code review assistant. Analyze PR risk and provide actionable, grounded insights. Always respond with valid JSON matching the requested schema."
)

// truncateDiff cuts a diff to at most maxChars, preferring a line
// boundary when one falls in the final 20% of the slice. The marker is
// accounted for up front so the result never exceeds maxChars.
func truncateDiff(diff string, maxChars int) string {
	if len(diff) <= maxChars {
		return diff
	}
	avail := maxChars - len(truncationMarker)
	if avail <= 0 {
		return ""
	}

	cut := diff[:avail]
	if nl := strings.LastIndexByte(cut, '\n'); nl > avail*4/5 {
		cut = cut[:nl]
	}
	return cut + truncationMarker
}

// BuildPrompt assembles the user prompt. Every patch is redacted before
// it is packed, and the combined diff content never exceeds maxDiffChars.
func BuildPrompt(in Input) string {
	remaining := maxDiffChars
	var packed []FileDiff
	for _, d := range in.FileDiffs {
		if d.Patch == "" {
			continue
		}
		if remaining <= 0 {
			break
		}
		patch := truncateDiff(redact.Secrets(d.Patch), remaining)
		if patch == "" {
			break
		}
		remaining -= len(patch)
		d.Patch = patch
		packed = append(packed, d)
	}

	var b strings.Builder
	b.WriteString("You are analyzing a Pull Request for risk assessment. Based on the computed risk score and file changes, provide actionable insights.\n\n")

	b.WriteString("## PR Risk Score\n")
	fmt.Fprintf(&b, "- Score: %d/100\n", in.Score)
	fmt.Fprintf(&b, "- Level: %s\n", in.Level)
	b.WriteString("- Top Risk Reasons:\n")
	for _, r := range in.Reasons {
		fmt.Fprintf(&b, "  - %s\n", r)
	}

	b.WriteString("\n## Changed Files\n")
	for _, f := range in.ChangedFiles {
		fmt.Fprintf(&b, "- %s\n", f)
	}

	b.WriteString("\n## Top Risky File Diffs\n")
	if len(packed) == 0 {
		b.WriteString("(No diff content available - files may be too large or binary)\n")
	} else {
		for i, d := range packed {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "### %s (+%d/-%d)\n", d.Filename, d.Additions, d.Deletions)
			fmt.Fprintf(&b, "```diff\n%s\n```\n", d.Patch)
		}
	}

	b.WriteString(`
## Instructions
1. Ground your analysis ONLY in the provided score, reasons, and file diffs above.
2. Do NOT invent file names, code patterns, or facts not present in the input.
3. Focus on actionable, specific recommendations.
4. Keep responses concise and practical.

## Output Format
Provide a JSON object with this exact structure:
{
  "summary": "1-2 sentences explaining why this PR is risky",
  "review_focus": ["3-5 specific items to review first"],
  "test_suggestions": ["3-6 concrete tests to add or run"],
  "rollback_risk": "LOW|MED|HIGH",
  "confidence": 0.0-1.0,
  "warnings": ["any uncertainty or missing information"]
}

Respond with ONLY the JSON object, no additional text.`)

	return b.String()
}
