package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-appgrader/internal/evaluation"
	"github.com/noah-isme/gema-appgrader/internal/models"
	"github.com/noah-isme/gema-appgrader/internal/repository"
	"github.com/noah-isme/gema-appgrader/pkg/events"
)

type stubEvaluator struct {
	mu      sync.Mutex
	targets []evaluation.Target
}

func (e *stubEvaluator) Run(_ context.Context, target evaluation.Target) []evaluation.Outcome {
	e.mu.Lock()
	e.targets = append(e.targets, target)
	e.mu.Unlock()

	return []evaluation.Outcome{
		{Name: evaluation.CheckLicense, Score: 1, Reason: "MIT license found"},
		{Name: evaluation.CheckReachability, Score: 0, Reason: "Pages returned 404"},
	}
}

type channelSubscriber struct {
	events chan events.SubmissionAccepted
}

func (s *channelSubscriber) Subscribe(ctx context.Context, handler events.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-s.events:
			handler(context.Background(), event)
		}
	}
}

func newTestEvaluationService(store repository.Store, evaluator Evaluator, sleeper *sleepRecorder) EvaluationService {
	return NewEvaluationService(store, evaluator, EvaluationConfig{
		Now:   func() time.Time { return fixedNow },
		Sleep: sleeper.Sleep,
	}, testLogger())
}

func sampleSubmission(email string) models.Submission {
	return models.Submission{
		Timestamp: fixedNow, Email: email, Task: "todo-manager-1a2b3", Round: 1, Nonce: "N1",
		RepoURL: "https://github.com/a/todo", CommitSHA: "abc123", PagesURL: "https://a.github.io/todo/",
	}
}

func TestEvaluateAppendsResults(t *testing.T) {
	_, store := setupStore(t)
	evaluator := &stubEvaluator{}
	svc := newTestEvaluationService(store, evaluator, &sleepRecorder{})
	ctx := context.Background()

	report, err := svc.Evaluate(ctx, sampleSubmission("a@x.edu"))
	require.NoError(t, err)
	require.Equal(t, 2, report.Stored)

	_, err = svc.Evaluate(ctx, sampleSubmission("a@x.edu"))
	require.NoError(t, err)

	results, err := store.Results.List(ctx, repository.ResultFilter{Email: "a@x.edu"})
	require.NoError(t, err)
	require.Len(t, results, 4)
	require.Equal(t, evaluation.CheckLicense, results[0].CheckName)
	require.Equal(t, "abc123", results[0].CommitSHA)
	require.Equal(t, "Pages returned 404", results[1].Reason)

	require.Equal(t, evaluation.Target{
		TaskID: "todo-manager-1a2b3", RepoURL: "https://github.com/a/todo", CommitSHA: "abc123", PagesURL: "https://a.github.io/todo/",
	}, evaluator.targets[0])
}

func TestEvaluateReportsStorageFailure(t *testing.T) {
	db, store := setupStore(t)
	require.NoError(t, db.Migrator().DropTable(&models.Result{}))
	svc := newTestEvaluationService(store, &stubEvaluator{}, &sleepRecorder{})

	report, err := svc.Evaluate(context.Background(), sampleSubmission("a@x.edu"))
	require.ErrorIs(t, err, ErrStorage)
	require.Equal(t, 2, report.Failed)
	require.Len(t, report.Outcomes, 2)
}

func TestEvaluateAllSweepsSubmissions(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()
	for _, email := range []string{"a@x.edu", "b@x.edu", "c@x.edu"} {
		submission := sampleSubmission(email)
		require.NoError(t, store.Submissions.Upsert(ctx, &submission))
	}

	evaluator := &stubEvaluator{}
	sleeper := &sleepRecorder{}
	svc := newTestEvaluationService(store, evaluator, sleeper)

	summary := svc.EvaluateAll(ctx, repository.SubmissionFilter{})
	require.Equal(t, SweepSummary{Processed: 3}, summary)
	require.Len(t, sleeper.sleeps, 2)
	require.Len(t, evaluator.targets, 3)

	results, err := store.Results.List(ctx, repository.ResultFilter{})
	require.NoError(t, err)
	require.Len(t, results, 6)
}

func TestFollowEvaluatesPublishedSubmissions(t *testing.T) {
	_, store := setupStore(t)
	evaluator := &stubEvaluator{}
	svc := newTestEvaluationService(store, evaluator, &sleepRecorder{})

	subscriber := &channelSubscriber{events: make(chan events.SubmissionAccepted, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Follow(ctx, subscriber) }()

	subscriber.events <- events.SubmissionAccepted{Email: "a@x.edu", Task: "todo-manager-1a2b3", Round: 1, RepoURL: "https://github.com/a/todo", CommitSHA: "abc", PagesURL: "https://a.github.io/todo/"}

	require.Eventually(t, func() bool {
		evaluator.mu.Lock()
		defer evaluator.mu.Unlock()
		return len(evaluator.targets) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	results, err := store.Results.List(context.Background(), repository.ResultFilter{Email: "a@x.edu"})
	require.NoError(t, err)
	require.Len(t, results, 2)
}
