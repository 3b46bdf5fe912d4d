package scoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_SmallCleanPRIsLow(t *testing.T) {
	res := Compute(Input{
		ChangedFiles:     3,
		Additions:        50,
		Deletions:        20,
		ChangedFilesList: []string{"src/api/users.go", "src/api/posts.go", "README.md"},
	})

	assert.LessOrEqual(t, res.Score, 30)
	assert.Equal(t, LevelLow, res.Level)
	assert.Contains(t, res.Reasons, "No test files changed")
	assert.False(t, res.Features.TouchesCriticalPaths)
	assert.Equal(t, 70, res.Features.LinesChanged)
}

func TestCompute_LargePRTouchingCriticalPathsIsHigh(t *testing.T) {
	files := make([]string, 0, 55)
	files = append(files, "src/auth/login.ts", "src/payments/x.ts")
	for i := 0; i < 53; i++ {
		files = append(files, fmt.Sprintf("src/feature/file%d.go", i))
	}

	res := Compute(Input{
		ChangedFiles:     55,
		Additions:        400,
		Deletions:        100,
		ChangedFilesList: files,
	})

	assert.Greater(t, res.Score, 70)
	assert.Equal(t, LevelHigh, res.Level)
	assert.Contains(t, res.Reasons, "Large PR: 55 files changed (threshold: 50)")
	assert.Contains(t, res.Reasons, "Touches multiple critical paths: Authentication, Payments")
}

func TestCompute_ZeroFiles(t *testing.T) {
	res := Compute(Input{})

	assert.Equal(t, 0, res.Score)
	assert.Equal(t, LevelLow, res.Level)
	assert.Empty(t, res.Reasons)
	assert.False(t, res.Features.HasTestChanges)
}

func TestCompute_SizeTiersAreMutuallyExclusive(t *testing.T) {
	res := Compute(Input{
		ChangedFiles:     60,
		ChangedFilesList: []string{"a.go"},
	})

	for _, r := range res.Reasons {
		assert.NotContains(t, r, "Medium PR: 60 files")
	}
	assert.Contains(t, res.Reasons, "Large PR: 60 files changed (threshold: 50)")
}

func TestCompute_LineTiers(t *testing.T) {
	med := Compute(Input{ChangedFiles: 1, Additions: 400, Deletions: 200, ChangedFilesList: []string{"a_test.go"}})
	assert.Contains(t, med.Reasons, "Medium PR: 600 lines changed (threshold: 500)")

	high := Compute(Input{ChangedFiles: 1, Additions: 900, Deletions: 200, ChangedFilesList: []string{"a_test.go"}})
	assert.Contains(t, high.Reasons, "Large PR: 1100 lines changed (threshold: 1000)")
	assert.NotContains(t, high.Reasons, "Medium PR: 1100 lines changed (threshold: 500)")
}

func TestCompute_SingleCriticalPathIsMed(t *testing.T) {
	res := Compute(Input{
		ChangedFiles:     1,
		ChangedFilesList: []string{"src/billing/invoice_test.go"},
	})

	assert.Contains(t, res.Reasons, "Touches critical path: Payments")
	assert.True(t, res.Features.HasTestChanges)
	assert.Equal(t, []string{"Payments"}, res.Features.CriticalPathsTouched)
}

func TestCompute_CIStatusRule(t *testing.T) {
	unknown := Compute(Input{ChangedFiles: 1, ChangedFilesList: []string{"a_test.go"}, CIStatus: CIUnknown})
	assert.Contains(t, unknown.Reasons, "CI status: unknown")

	failing := Compute(Input{ChangedFiles: 1, ChangedFilesList: []string{"a_test.go"}, CIStatus: CIFailure})
	assert.Contains(t, failing.Reasons, "CI status: failure")

	passing := Compute(Input{ChangedFiles: 1, ChangedFilesList: []string{"a_test.go"}, CIStatus: CISuccess})
	assert.NotContains(t, passing.Reasons, "CI status: success")
}

func TestCompute_ScoreCappedAfterSummation(t *testing.T) {
	files := make([]string, 0, 60)
	files = append(files, "src/auth/a.go", "src/payments/b.go", "migrations/0001.sql")
	for i := 0; i < 57; i++ {
		files = append(files, fmt.Sprintf("f%d.go", i))
	}
	res := Compute(Input{
		ChangedFiles:     60,
		Additions:        2000,
		Deletions:        500,
		ChangedFilesList: files,
		CIStatus:         CIFailure,
	})

	assert.Equal(t, 100, res.Score)
	assert.Equal(t, LevelHigh, res.Level)
}

func TestCompute_ReasonsOrderingAndBound(t *testing.T) {
	files := make([]string, 0, 25)
	files = append(files, "src/auth/a.go")
	for i := 0; i < 24; i++ {
		files = append(files, fmt.Sprintf("f%d.go", i))
	}
	// MED files + HIGH lines + MED critical + MED no-tests + MED ci.
	res := Compute(Input{
		ChangedFiles:     25,
		Additions:        1500,
		Deletions:        0,
		ChangedFilesList: files,
		CIStatus:         CIUnknown,
	})

	require.Len(t, res.Reasons, 3)
	// The single HIGH rule leads; MED rules follow in evaluation order.
	assert.Equal(t, "Large PR: 1500 lines changed (threshold: 1000)", res.Reasons[0])
	assert.Equal(t, "Medium PR: 25 files changed (threshold: 20)", res.Reasons[1])
	assert.Equal(t, "Touches critical path: Authentication", res.Reasons[2])
}

func TestCompute_LevelIsFunctionOfScore(t *testing.T) {
	// Walk a range of inputs and recheck the band mapping.
	for files := 0; files <= 80; files += 5 {
		list := make([]string, files)
		for i := range list {
			list[i] = fmt.Sprintf("f%d.go", i)
		}
		res := Compute(Input{ChangedFiles: files, Additions: files * 20, ChangedFilesList: list, CIStatus: CIUnknown})

		require.GreaterOrEqual(t, res.Score, 0)
		require.LessOrEqual(t, res.Score, 100)
		switch {
		case res.Score <= 30:
			assert.Equal(t, LevelLow, res.Level)
		case res.Score <= 70:
			assert.Equal(t, LevelMed, res.Level)
		default:
			assert.Equal(t, LevelHigh, res.Level)
		}
		require.LessOrEqual(t, len(res.Reasons), 3)
	}
}
