// Package worker drains the job queue and runs the scoring pipeline:
// fetch PR details, compute and persist the score, then optionally run
// AI analysis and post a review comment.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"prsentry/internal/analyst"
	"prsentry/internal/queue"
	"prsentry/internal/ratelimit"
	"prsentry/internal/scm"
	"prsentry/internal/scoring"
	"prsentry/internal/store"
)

const (
	defaultConcurrency = 5
	defaultDequeueRPS  = 10
)

// SCM is the retrieval surface the pipeline needs.
type SCM interface {
	GetRepository(ctx context.Context, installationID int64, owner, name string) (scm.RepoInfo, error)
	FetchPRDetails(ctx context.Context, installationID int64, owner, name string, number int) (scm.PRDetails, error)
	FetchFileDiffs(ctx context.Context, installationID int64, owner, name string, number int, paths []string) ([]scm.FileDiff, error)
	PostAnalysisComment(ctx context.Context, installationID int64, owner, name string, number int, out analyst.Output) error
}

// Store is the persistence surface the pipeline needs.
type Store interface {
	UpsertPullRequest(ctx context.Context, repo store.RepoRecord, pr store.PullRequestRecord) (int64, error)
	SavePRScore(ctx context.Context, pullRequestID int64, res scoring.Result) error
	SaveAnalysis(ctx context.Context, pullRequestID int64, analysis json.RawMessage, model, promptVersion string) error
}

// Analyst produces validated AI output. Nil disables the AI stage.
type Analyst interface {
	Generate(ctx context.Context, in analyst.Input) (*analyst.Output, error)
	Model() string
}

// Config tunes the pool.
type Config struct {
	Concurrency  int
	DequeueRPS   float64
	PostComments bool
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.DequeueRPS <= 0 {
		c.DequeueRPS = defaultDequeueRPS
	}
	return c
}

// Pool runs Config.Concurrency workers against one queue.
type Pool struct {
	cfg     Config
	q       queue.Client
	scm     SCM
	store   Store
	analyst Analyst
	limiter *ratelimit.Bucket
	log     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a pool. analyst may be nil when AI analysis is disabled.
func New(cfg Config, q queue.Client, s SCM, st Store, a Analyst, log *slog.Logger) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:     cfg,
		q:       q,
		scm:     s,
		store:   st,
		analyst: a,
		limiter: ratelimit.New(cfg.DequeueRPS, cfg.Concurrency),
		log:     log,
	}
}

// Start launches the workers. They run until Stop.
func (p *Pool) Start(ctx context.Context) {
	dequeueCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(dequeueCtx, ctx, id)
		}(i)
	}
	p.log.Info("worker pool started", "concurrency", p.cfg.Concurrency, "dequeue_rps", p.cfg.DequeueRPS)
}

// Stop halts dequeuing and waits for in-flight jobs to finish. Only the
// dequeue wait is cancelled; running jobs keep the Start context, so a
// job in flight completes rather than being interrupted mid-call.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.limiter.Stop()
	p.log.Info("worker pool stopped")
}

func (p *Pool) run(dequeueCtx, jobCtx context.Context, id int) {
	for {
		if err := p.limiter.Acquire(dequeueCtx); err != nil {
			return
		}
		d, err := p.q.Dequeue(dequeueCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
				return
			}
			p.log.Error("dequeue failed", "worker", id, "error", err)
			continue
		}

		if err := p.process(jobCtx, d); err != nil {
			p.log.Error("job failed", "worker", id, "job_id", d.Job.ID(), "attempt", d.Attempt, "error", err)
			_ = p.q.Nack(jobCtx, d)
			continue
		}
		_ = p.q.Ack(jobCtx, d)
	}
}

// process runs one job. An error return means the whole job should be
// retried by the queue; AI and comment failures deliberately do not
// propagate because the score is already saved.
func (p *Pool) process(ctx context.Context, d queue.Delivery) error {
	job := d.Job
	log := p.log.With("job_id", job.ID(), "attempt", d.Attempt)
	log.Info("processing pull request", "repo", job.Owner+"/"+job.Name, "pr", job.PRNumber)

	repo, err := p.scm.GetRepository(ctx, job.InstallationID, job.Owner, job.Name)
	if err != nil {
		return err
	}

	details, err := p.scm.FetchPRDetails(ctx, job.InstallationID, job.Owner, job.Name, job.PRNumber)
	if err != nil {
		return err
	}

	prID, err := p.store.UpsertPullRequest(ctx,
		store.RepoRecord{
			GitHubRepoID:   repo.ID,
			Owner:          repo.Owner,
			Name:           repo.Name,
			FullName:       repo.FullName,
			InstallationID: job.InstallationID,
			Private:        repo.Private,
		},
		store.PullRequestRecord{
			GitHubPRID:       details.ID,
			Number:           job.PRNumber,
			Title:            details.Title,
			State:            details.State,
			Author:           details.Author,
			HeadSHA:          details.HeadSHA,
			BaseRef:          details.BaseRef,
			HeadRef:          details.HeadRef,
			Additions:        details.Additions,
			Deletions:        details.Deletions,
			ChangedFiles:     details.ChangedFiles,
			ChangedFilesList: details.ChangedFilesList,
			MergedAt:         details.MergedAt,
		})
	if err != nil {
		return err
	}

	// CI status is not available at webhook time; the score records it
	// as unknown rather than guessing.
	result := scoring.Compute(scoring.Input{
		ChangedFiles:     details.ChangedFiles,
		Additions:        details.Additions,
		Deletions:        details.Deletions,
		ChangedFilesList: details.ChangedFilesList,
		CIStatus:         scoring.CIUnknown,
	})
	if err := p.store.SavePRScore(ctx, prID, result); err != nil {
		return err
	}
	log.Info("score saved", "score", result.Score, "level", result.Level)

	out := p.analyze(ctx, log, job, prID, details, result)
	if out != nil && p.cfg.PostComments {
		if err := p.scm.PostAnalysisComment(ctx, job.InstallationID, job.Owner, job.Name, job.PRNumber, *out); err != nil {
			log.Warn("failed to post analysis comment", "error", err)
		}
	}
	return nil
}

// analyze runs the optional AI stage. Failures are logged and swallowed.
func (p *Pool) analyze(ctx context.Context, log *slog.Logger, job queue.ScorePRJob, prID int64, details scm.PRDetails, result scoring.Result) *analyst.Output {
	if p.analyst == nil {
		return nil
	}

	risky := scoring.SelectRiskyFiles(details.ChangedFilesList, details.FileChurn)
	if len(risky) == 0 {
		log.Debug("no risky files to analyze")
		return nil
	}
	paths := make([]string, len(risky))
	for i, f := range risky {
		paths[i] = f.Filename
	}

	diffs, err := p.scm.FetchFileDiffs(ctx, job.InstallationID, job.Owner, job.Name, job.PRNumber, paths)
	if err != nil {
		log.Warn("failed to fetch diffs for analysis", "error", err)
		return nil
	}

	in := analyst.Input{
		Score:        result.Score,
		Level:        result.Level,
		Reasons:      result.Reasons,
		ChangedFiles: details.ChangedFilesList,
		FileDiffs:    make([]analyst.FileDiff, len(diffs)),
	}
	for i, d := range diffs {
		in.FileDiffs[i] = analyst.FileDiff{
			Filename:  d.Filename,
			Patch:     d.Patch,
			Additions: d.Additions,
			Deletions: d.Deletions,
		}
	}

	out, err := p.analyst.Generate(ctx, in)
	if err != nil {
		log.Warn("ai analysis failed", "error", err)
		return nil
	}

	payload, err := json.Marshal(out)
	if err != nil {
		log.Warn("ai output not serializable", "error", err)
		return nil
	}
	// Comments are only posted for analyses that made it to the store.
	if err := p.store.SaveAnalysis(ctx, prID, payload, p.analyst.Model(), analyst.PromptVersion); err != nil {
		log.Warn("failed to save ai analysis", "error", err)
		return nil
	}
	log.Info("ai analysis saved", "model", p.analyst.Model(), "prompt_version", analyst.PromptVersion)
	return out
}
