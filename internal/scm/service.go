// Package scm talks to the source-control API: PR summaries, per-file
// diffs, and review comments, all under a shared rate-limit-aware retry
// policy.
package scm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/go-github/v61/github"
	"golang.org/x/oauth2"

	"prsentry/internal/scoring"
)

// RepoInfo is the stable repository identity resolved from the API.
type RepoInfo struct {
	ID       int64
	FullName string
	Owner    string
	Name     string
	Private  bool
}

// PRDetails is the summary plus changed-file list for one pull request.
type PRDetails struct {
	ID               int64
	Title            string
	Author           string
	State            string
	Additions        int
	Deletions        int
	ChangedFiles     int
	ChangedFilesList []string
	FileChurn        map[string]scoring.Churn
	HeadSHA          string
	BaseRef          string
	HeadRef          string
	MergedAt         *time.Time
}

// FileDiff carries one file's patch. Patch is empty for binary or
// oversized files where the API omits it.
type FileDiff struct {
	Filename  string
	Patch     string
	Additions int
	Deletions int
}

// Service implements the retrieval operations against the GitHub API.
type Service struct {
	tokens TokenSource
	log    *slog.Logger
}

func NewService(tokens TokenSource, log *slog.Logger) *Service {
	return &Service{tokens: tokens, log: log}
}

func newGitHubClient(ctx context.Context, token string) *github.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

// GetRepository resolves the stable numeric identity for owner/name.
func (s *Service) GetRepository(ctx context.Context, installationID int64, owner, name string) (RepoInfo, error) {
	var info RepoInfo
	err := s.withClient(ctx, installationID, func(cli *github.Client) error {
		repo, _, err := cli.Repositories.Get(ctx, owner, name)
		if err != nil {
			return err
		}
		info = RepoInfo{
			ID:       repo.GetID(),
			FullName: repo.GetFullName(),
			Owner:    owner,
			Name:     name,
			Private:  repo.GetPrivate(),
		}
		return nil
	})
	if err != nil {
		return RepoInfo{}, fmt.Errorf("get repository %s/%s: %w", owner, name, err)
	}
	return info, nil
}

// FetchPRDetails returns the PR summary and its full changed-file list
// with per-file churn.
func (s *Service) FetchPRDetails(ctx context.Context, installationID int64, owner, name string, number int) (PRDetails, error) {
	var details PRDetails
	err := s.withClient(ctx, installationID, func(cli *github.Client) error {
		pr, _, err := cli.PullRequests.Get(ctx, owner, name, number)
		if err != nil {
			return err
		}

		files, err := listAllFiles(ctx, cli, owner, name, number)
		if err != nil {
			return err
		}

		churn := make(map[string]scoring.Churn, len(files))
		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, f.GetFilename())
			churn[f.GetFilename()] = scoring.Churn{
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
			}
		}

		details = PRDetails{
			ID:               pr.GetID(),
			Title:            pr.GetTitle(),
			Author:           pr.GetUser().GetLogin(),
			State:            pr.GetState(),
			Additions:        pr.GetAdditions(),
			Deletions:        pr.GetDeletions(),
			ChangedFiles:     pr.GetChangedFiles(),
			ChangedFilesList: names,
			FileChurn:        churn,
			HeadSHA:          pr.GetHead().GetSHA(),
			BaseRef:          pr.GetBase().GetRef(),
			HeadRef:          pr.GetHead().GetRef(),
		}
		if merged := pr.GetMergedAt(); !merged.IsZero() {
			t := merged.Time
			details.MergedAt = &t
		}
		if details.Author == "" {
			details.Author = "unknown"
		}
		return nil
	})
	if err != nil {
		return PRDetails{}, fmt.Errorf("fetch pr %s/%s#%d: %w", owner, name, number, err)
	}
	return details, nil
}

// FetchFileDiffs returns diffs restricted to the given file-path subset.
func (s *Service) FetchFileDiffs(ctx context.Context, installationID int64, owner, name string, number int, paths []string) ([]FileDiff, error) {
	want := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		want[p] = struct{}{}
	}

	var diffs []FileDiff
	err := s.withClient(ctx, installationID, func(cli *github.Client) error {
		files, err := listAllFiles(ctx, cli, owner, name, number)
		if err != nil {
			return err
		}
		diffs = diffs[:0]
		for _, f := range files {
			if _, ok := want[f.GetFilename()]; !ok {
				continue
			}
			diffs = append(diffs, FileDiff{
				Filename:  f.GetFilename(),
				Patch:     f.GetPatch(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch diffs %s/%s#%d: %w", owner, name, number, err)
	}
	return diffs, nil
}

func listAllFiles(ctx context.Context, cli *github.Client, owner, name string, number int) ([]*github.CommitFile, error) {
	var all []*github.CommitFile
	opts := &github.ListOptions{PerPage: 100}
	for {
		files, resp, err := cli.PullRequests.ListFiles(ctx, owner, name, number, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, files...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}
