package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"prsentry/internal/scoring"
)

// levelForStorage maps the wire-level risk band to the lowercase form
// the rows carry.
func levelForStorage(l scoring.Level) string {
	switch l {
	case scoring.LevelLow:
		return "low"
	case scoring.LevelMed:
		return "medium"
	default:
		return "high"
	}
}

// SavePRScore appends one score row. Scores are never updated in place:
// every push produces a fresh row so score history survives.
func (s *Store) SavePRScore(ctx context.Context, pullRequestID int64, res scoring.Result) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}

	reasons, err := json.Marshal(res.Reasons)
	if err != nil {
		return err
	}
	features, err := json.Marshal(res.Features)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO pr_scores (pull_request_id, score, level, reasons, features)
VALUES ($1,$2,$3,$4,$5)`,
		pullRequestID, res.Score, levelForStorage(res.Level), reasons, features)
	if err != nil {
		return fmt.Errorf("save score for pr %d: %w", pullRequestID, err)
	}
	return nil
}

// SaveAnalysis appends one AI analysis row. The analysis payload is
// already validated by the caller.
func (s *Store) SaveAnalysis(ctx context.Context, pullRequestID int64, analysis json.RawMessage, model, promptVersion string) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO pr_ai_analyses (pull_request_id, analysis_json, model, prompt_version)
VALUES ($1,$2,$3,$4)`,
		pullRequestID, []byte(analysis), model, promptVersion)
	if err != nil {
		return fmt.Errorf("save analysis for pr %d: %w", pullRequestID, err)
	}
	return nil
}

// PullRequestView is the read model returned by GetPullRequest: the PR
// snapshot plus its most recent score, if any.
type PullRequestView struct {
	ID           int64      `json:"id"`
	RepoFullName string     `json:"repo_full_name"`
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	State        string     `json:"state"`
	Author       string     `json:"author"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changed_files"`
	MergedAt     *time.Time `json:"merged_at,omitempty"`

	Score   *int     `json:"score,omitempty"`
	Level   string   `json:"level,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

// GetPullRequest looks a PR up by repo coordinates and joins its latest
// score.
func (s *Store) GetPullRequest(ctx context.Context, owner, name string, number int) (*PullRequestView, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
SELECT pr.id, r.full_name, pr.number, pr.title, pr.state, pr.author,
  pr.additions, pr.deletions, pr.changed_files, pr.merged_at,
  sc.score, sc.level, sc.reasons
FROM pull_requests pr
JOIN repos r ON r.id = pr.repo_id
LEFT JOIN LATERAL (
  SELECT score, level, reasons FROM pr_scores
  WHERE pull_request_id = pr.id
  ORDER BY created_at DESC LIMIT 1
) sc ON TRUE
WHERE r.owner = $1 AND r.name = $2 AND pr.number = $3`,
		owner, name, number)

	var (
		v          PullRequestView
		score      sql.NullInt64
		level      sql.NullString
		reasonsRaw []byte
	)
	err := row.Scan(&v.ID, &v.RepoFullName, &v.Number, &v.Title, &v.State, &v.Author,
		&v.Additions, &v.Deletions, &v.ChangedFiles, &v.MergedAt,
		&score, &level, &reasonsRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if score.Valid {
		n := int(score.Int64)
		v.Score = &n
		v.Level = level.String
		if len(reasonsRaw) > 0 {
			_ = json.Unmarshal(reasonsRaw, &v.Reasons)
		}
	}
	return &v, nil
}
