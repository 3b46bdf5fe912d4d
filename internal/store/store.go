// Package store persists repos, pull requests, scores, and AI analyses
// in Postgres via database/sql.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Store wraps a Postgres connection. The schema is created lazily on
// first use.
type Store struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

// New opens a Postgres connection and verifies it.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS repos (
  id BIGSERIAL PRIMARY KEY,
  github_repo_id BIGINT NOT NULL UNIQUE,
  full_name TEXT NOT NULL,
  owner TEXT NOT NULL,
  name TEXT NOT NULL,
  installation_id BIGINT NOT NULL,
  private BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS pull_requests (
  id BIGSERIAL PRIMARY KEY,
  repo_id BIGINT NOT NULL REFERENCES repos(id),
  github_pr_id BIGINT NOT NULL,
  number INTEGER NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL DEFAULT '',
  author TEXT NOT NULL DEFAULT 'unknown',
  head_sha TEXT NOT NULL DEFAULT '',
  base_ref TEXT NOT NULL DEFAULT '',
  head_ref TEXT NOT NULL DEFAULT '',
  additions INTEGER NOT NULL DEFAULT 0,
  deletions INTEGER NOT NULL DEFAULT 0,
  changed_files INTEGER NOT NULL DEFAULT 0,
  changed_files_list JSONB NOT NULL DEFAULT '[]',
  merged_at TIMESTAMP WITH TIME ZONE,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  UNIQUE (repo_id, number)
);

CREATE TABLE IF NOT EXISTS pr_scores (
  id BIGSERIAL PRIMARY KEY,
  pull_request_id BIGINT NOT NULL REFERENCES pull_requests(id),
  score INTEGER NOT NULL,
  level TEXT NOT NULL,
  reasons JSONB NOT NULL DEFAULT '[]',
  features JSONB NOT NULL DEFAULT '{}',
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_pr_scores_pr_id ON pr_scores (pull_request_id);

CREATE TABLE IF NOT EXISTS pr_ai_analyses (
  id BIGSERIAL PRIMARY KEY,
  pull_request_id BIGINT NOT NULL REFERENCES pull_requests(id),
  analysis_json JSONB NOT NULL,
  model TEXT NOT NULL,
  prompt_version TEXT NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_pr_ai_analyses_pr_id ON pr_ai_analyses (pull_request_id);
`)
	})
	return s.schemaErr
}

// RepoRecord is the repository row written alongside every PR.
type RepoRecord struct {
	GitHubRepoID   int64
	Owner          string
	Name           string
	FullName       string
	InstallationID int64
	Private        bool
}

// PullRequestRecord is one PR snapshot as fetched from the SCM.
type PullRequestRecord struct {
	GitHubPRID       int64
	Number           int
	Title            string
	State            string
	Author           string
	HeadSHA          string
	BaseRef          string
	HeadRef          string
	Additions        int
	Deletions        int
	ChangedFiles     int
	ChangedFilesList []string
	MergedAt         *time.Time
}

// UpsertPullRequest writes the repo and PR rows in one transaction and
// returns the pull request's row ID. Re-running for the same PR updates
// the snapshot in place.
func (s *Store) UpsertPullRequest(ctx context.Context, repo RepoRecord, pr PullRequestRecord) (int64, error) {
	if err := s.ensureSchema(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var repoID int64
	err = tx.QueryRowContext(ctx, `
INSERT INTO repos (github_repo_id, full_name, owner, name, installation_id, private)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (github_repo_id)
DO UPDATE SET full_name=EXCLUDED.full_name,
  owner=EXCLUDED.owner,
  name=EXCLUDED.name,
  installation_id=EXCLUDED.installation_id,
  updated_at=NOW()
RETURNING id`,
		repo.GitHubRepoID, repo.FullName, repo.Owner, repo.Name, repo.InstallationID, repo.Private,
	).Scan(&repoID)
	if err != nil {
		return 0, fmt.Errorf("upsert repo %s: %w", repo.FullName, err)
	}

	filesJSON, err := json.Marshal(pr.ChangedFilesList)
	if err != nil {
		return 0, err
	}

	var prID int64
	err = tx.QueryRowContext(ctx, `
INSERT INTO pull_requests (
  repo_id, github_pr_id, number, title, state, author,
  head_sha, base_ref, head_ref,
  additions, deletions, changed_files, changed_files_list, merged_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (repo_id, number)
DO UPDATE SET title=EXCLUDED.title,
  state=EXCLUDED.state,
  author=EXCLUDED.author,
  head_sha=EXCLUDED.head_sha,
  base_ref=EXCLUDED.base_ref,
  head_ref=EXCLUDED.head_ref,
  additions=EXCLUDED.additions,
  deletions=EXCLUDED.deletions,
  changed_files=EXCLUDED.changed_files,
  changed_files_list=EXCLUDED.changed_files_list,
  merged_at=EXCLUDED.merged_at,
  updated_at=NOW()
RETURNING id`,
		repoID, pr.GitHubPRID, pr.Number, pr.Title, pr.State, pr.Author,
		pr.HeadSHA, pr.BaseRef, pr.HeadRef,
		pr.Additions, pr.Deletions, pr.ChangedFiles, filesJSON, pr.MergedAt,
	).Scan(&prID)
	if err != nil {
		return 0, fmt.Errorf("upsert pull request #%d: %w", pr.Number, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return prID, nil
}
