package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prsentry/internal/analyst"
	"prsentry/internal/queue"
	"prsentry/internal/scm"
	"prsentry/internal/scoring"
	"prsentry/internal/store"
)

type fakeSCM struct {
	mu       sync.Mutex
	repoErr  error
	prErr    error
	details  scm.PRDetails
	diffs    []scm.FileDiff
	comments []analyst.Output
}

func (f *fakeSCM) GetRepository(_ context.Context, _ int64, owner, name string) (scm.RepoInfo, error) {
	if f.repoErr != nil {
		return scm.RepoInfo{}, f.repoErr
	}
	return scm.RepoInfo{ID: 99, Owner: owner, Name: name, FullName: owner + "/" + name}, nil
}

func (f *fakeSCM) FetchPRDetails(context.Context, int64, string, string, int) (scm.PRDetails, error) {
	if f.prErr != nil {
		return scm.PRDetails{}, f.prErr
	}
	return f.details, nil
}

func (f *fakeSCM) FetchFileDiffs(context.Context, int64, string, string, int, []string) ([]scm.FileDiff, error) {
	return f.diffs, nil
}

func (f *fakeSCM) PostAnalysisComment(_ context.Context, _ int64, _, _ string, _ int, out analyst.Output) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, out)
	return nil
}

type fakeStore struct {
	mu          sync.Mutex
	upsertErr   error
	scoreErr    error
	analysisErr error
	scores      []scoring.Result
	analyses    []json.RawMessage
}

func (f *fakeStore) UpsertPullRequest(context.Context, store.RepoRecord, store.PullRequestRecord) (int64, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	return 1, nil
}

func (f *fakeStore) SavePRScore(_ context.Context, _ int64, res scoring.Result) error {
	if f.scoreErr != nil {
		return f.scoreErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores = append(f.scores, res)
	return nil
}

func (f *fakeStore) SaveAnalysis(_ context.Context, _ int64, analysis json.RawMessage, _, _ string) error {
	if f.analysisErr != nil {
		return f.analysisErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyses = append(f.analyses, analysis)
	return nil
}

type fakeAnalyst struct {
	out *analyst.Output
	err error
}

func (f *fakeAnalyst) Generate(context.Context, analyst.Input) (*analyst.Output, error) {
	return f.out, f.err
}
func (f *fakeAnalyst) Model() string { return "test-model" }

func goodOutput() *analyst.Output {
	return &analyst.Output{
		Summary:         "Large change on a payment path with failing checks.",
		ReviewFocus:     []string{"charge flow", "refund retries", "webhook ordering"},
		TestSuggestions: []string{"fee rounding test", "refund retry test", "replay test"},
		RollbackRisk:    "HIGH",
		Confidence:      0.7,
	}
}

func prDetails() scm.PRDetails {
	return scm.PRDetails{
		ID:               1001,
		Title:            "Rework payment charges",
		Author:           "dev",
		State:            "open",
		Additions:        800,
		Deletions:        300,
		ChangedFiles:     12,
		ChangedFilesList: []string{"src/payments/charge.ts", "src/payments/refund.ts"},
		FileChurn: map[string]scoring.Churn{
			"src/payments/charge.ts": {Additions: 500, Deletions: 200},
			"src/payments/refund.ts": {Additions: 300, Deletions: 100},
		},
	}
}

func delivery() queue.Delivery {
	return queue.Delivery{
		Job: queue.ScorePRJob{
			Owner: "acme", Name: "shop", PRNumber: 42,
			InstallationID: 777, DeliveryID: "d1",
		},
		Attempt: 1,
	}
}

func newPool(s *fakeSCM, st *fakeStore, a Analyst, post bool) *Pool {
	return New(Config{Concurrency: 1, DequeueRPS: 1000, PostComments: post},
		queue.NewMemory(slog.Default()), s, st, a, slog.Default())
}

func TestProcess_SavesScore(t *testing.T) {
	s := &fakeSCM{details: prDetails()}
	st := &fakeStore{}
	p := newPool(s, st, nil, false)

	require.NoError(t, p.process(context.Background(), delivery()))

	require.Len(t, st.scores, 1)
	res := st.scores[0]
	assert.Greater(t, res.Score, 0)
	assert.Equal(t, "unknown", res.Features.CIStatus)
	assert.Contains(t, res.Features.CriticalPathsTouched, "Payments")
	assert.Empty(t, st.analyses, "no analyst configured")
}

func TestProcess_FetchFailureIsRetryable(t *testing.T) {
	s := &fakeSCM{prErr: errors.New("boom")}
	st := &fakeStore{}
	p := newPool(s, st, nil, false)

	err := p.process(context.Background(), delivery())
	require.Error(t, err)
	assert.Empty(t, st.scores)
}

func TestProcess_PersistFailureIsRetryable(t *testing.T) {
	s := &fakeSCM{details: prDetails()}
	st := &fakeStore{scoreErr: errors.New("db down")}
	p := newPool(s, st, nil, false)

	require.Error(t, p.process(context.Background(), delivery()))
}

func TestProcess_AnalysisSavedAndCommentPosted(t *testing.T) {
	s := &fakeSCM{
		details: prDetails(),
		diffs:   []scm.FileDiff{{Filename: "src/payments/charge.ts", Patch: "+x", Additions: 500, Deletions: 200}},
	}
	st := &fakeStore{}
	p := newPool(s, st, &fakeAnalyst{out: goodOutput()}, true)

	require.NoError(t, p.process(context.Background(), delivery()))

	require.Len(t, st.analyses, 1)
	var saved analyst.Output
	require.NoError(t, json.Unmarshal(st.analyses[0], &saved))
	assert.Equal(t, "HIGH", saved.RollbackRisk)

	require.Len(t, s.comments, 1)
	assert.Equal(t, goodOutput().Summary, s.comments[0].Summary)
}

func TestProcess_AnalysisFailureDoesNotFailJob(t *testing.T) {
	s := &fakeSCM{
		details: prDetails(),
		diffs:   []scm.FileDiff{{Filename: "src/payments/charge.ts", Patch: "+x"}},
	}
	st := &fakeStore{}
	p := newPool(s, st, &fakeAnalyst{err: errors.New("model unhappy")}, true)

	require.NoError(t, p.process(context.Background(), delivery()))
	require.Len(t, st.scores, 1, "score persisted even when analysis fails")
	assert.Empty(t, st.analyses)
	assert.Empty(t, s.comments)
}

func TestProcess_UnsavedAnalysisIsNotCommented(t *testing.T) {
	s := &fakeSCM{
		details: prDetails(),
		diffs:   []scm.FileDiff{{Filename: "src/payments/charge.ts", Patch: "+x"}},
	}
	st := &fakeStore{analysisErr: errors.New("db down")}
	p := newPool(s, st, &fakeAnalyst{out: goodOutput()}, true)

	require.NoError(t, p.process(context.Background(), delivery()))
	require.Len(t, st.scores, 1)
	assert.Empty(t, s.comments, "comment must only reflect a persisted analysis")
}

// slowSCM blocks FetchPRDetails until released, to hold a job in flight.
type slowSCM struct {
	fakeSCM
	started chan struct{}
	release chan struct{}
}

func (s *slowSCM) FetchPRDetails(ctx context.Context, id int64, owner, name string, number int) (scm.PRDetails, error) {
	close(s.started)
	<-s.release
	return s.fakeSCM.FetchPRDetails(ctx, id, owner, name, number)
}

func TestStop_DrainsInFlightJob(t *testing.T) {
	s := &slowSCM{
		fakeSCM: fakeSCM{details: prDetails()},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	st := &fakeStore{}
	q := queue.NewMemory(slog.Default())
	p := New(Config{Concurrency: 1, DequeueRPS: 1000}, q, s, st, nil, slog.Default())

	p.Start(context.Background())
	require.NoError(t, q.Enqueue(context.Background(), delivery().Job))
	<-s.started

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.release)
	}()
	p.Stop() // must block until the in-flight job completes

	require.Len(t, st.scores, 1, "in-flight job finished during shutdown")
	assert.Empty(t, q.DeadLetters())
	_ = q.Close()
}

func TestPool_EndToEndThroughQueue(t *testing.T) {
	s := &fakeSCM{details: prDetails()}
	st := &fakeStore{}
	q := queue.NewMemory(slog.Default())
	p := New(Config{Concurrency: 2, DequeueRPS: 1000}, q, s, st, nil, slog.Default())

	p.Start(context.Background())
	require.NoError(t, q.Enqueue(context.Background(), delivery().Job))

	assert.Eventually(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return len(st.scores) == 1
	}, 2*time.Second, 10*time.Millisecond)

	p.Stop()
	_ = q.Close()
}

func TestPool_FailedJobIsNackedAndRedelivered(t *testing.T) {
	s := &fakeSCM{repoErr: errors.New("github down")}
	st := &fakeStore{}
	q := queue.NewMemory(slog.Default())
	p := New(Config{Concurrency: 1, DequeueRPS: 1000}, q, s, st, nil, slog.Default())

	p.Start(context.Background())
	require.NoError(t, q.Enqueue(context.Background(), delivery().Job))

	assert.Eventually(t, func() bool {
		return len(q.DeadLetters()) == 1
	}, 15*time.Second, 50*time.Millisecond)

	p.Stop()
	_ = q.Close()
}
