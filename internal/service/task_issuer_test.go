package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-appgrader/internal/catalog"
	"github.com/noah-isme/gema-appgrader/internal/models"
	"github.com/noah-isme/gema-appgrader/internal/repository"
)

func newTestIssuer(t *testing.T, store repository.Store, deliverer Deliverer, sleeper *sleepRecorder) TaskIssuer {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	return NewTaskIssuer(store, cat, deliverer, IssuerConfig{
		EvaluationURL: "https://grader.example/api/notify",
		Now:           func() time.Time { return fixedNow },
		NewNonce:      sequentialNonces(),
		PickRound2:    func(int) int { return 1 },
		Sleep:         sleeper.Sleep,
	}, testLogger())
}

func TestIssueRound1PersistsAndDelivers(t *testing.T) {
	_, store := setupStore(t)
	deliverer := &stubDeliverer{statuses: []int{200}}
	sleeper := &sleepRecorder{}
	issuer := newTestIssuer(t, store, deliverer, sleeper)

	regs := []Registration{
		{Email: "a@x.edu", Endpoint: "https://a.example/build", Secret: "sa"},
		{Email: "b@x.edu", Endpoint: "https://b.example/build", Secret: "sb"},
	}
	summary := issuer.IssueRound1(context.Background(), regs)
	require.Equal(t, SweepSummary{Processed: 2}, summary)
	require.Equal(t, []time.Duration{time.Second}, sleeper.sleeps)

	tasks, err := store.Tasks.List(context.Background(), repository.TaskFilter{Round: 1})
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	cat, _ := catalog.Default()
	family := cat.SelectRound1("a@x.edu", catalog.HourBucket(fixedNow))
	expectedID := catalog.TaskID(family.ID, family.Round1.Brief, family.Round1.Attachments)

	first := tasks[0]
	require.Equal(t, "a@x.edu", first.Email)
	require.Equal(t, expectedID, first.Task)
	require.Equal(t, "nonce-1", first.Nonce)
	require.Equal(t, family.Round1.Checks, first.CheckList())
	require.True(t, first.Delivered())

	require.Len(t, deliverer.calls, 2)
	payload := deliverer.calls[0].Payload
	require.Equal(t, "https://a.example/build", deliverer.calls[0].Endpoint)
	require.Equal(t, "sa", payload.Secret)
	require.Equal(t, expectedID, payload.Task)
	require.Equal(t, "https://grader.example/api/notify", payload.EvaluationURL)
}

func TestIssueRound1IsIdempotent(t *testing.T) {
	_, store := setupStore(t)
	deliverer := &stubDeliverer{}
	issuer := newTestIssuer(t, store, deliverer, &sleepRecorder{})
	regs := []Registration{{Email: "a@x.edu", Endpoint: "https://a.example/build", Secret: "s"}}

	first := issuer.IssueRound1(context.Background(), regs)
	second := issuer.IssueRound1(context.Background(), regs)
	require.Equal(t, SweepSummary{Processed: 1}, first)
	require.Equal(t, SweepSummary{Skipped: 1}, second)

	tasks, err := store.Tasks.List(context.Background(), repository.TaskFilter{Email: "a@x.edu"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Len(t, deliverer.calls, 1)
}

func TestIssueRound1RecordsFailedDelivery(t *testing.T) {
	_, store := setupStore(t)
	issuer := newTestIssuer(t, store, &stubDeliverer{err: errors.New("connection refused")}, &sleepRecorder{})

	summary := issuer.IssueRound1(context.Background(), []Registration{{Email: "a@x.edu", Endpoint: "https://a.example", Secret: "s"}})
	require.Equal(t, SweepSummary{Processed: 1}, summary)

	tasks, err := store.Tasks.List(context.Background(), repository.TaskFilter{Email: "a@x.edu"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Nil(t, tasks[0].StatusCode)
}

func TestIssueRound1RecordsNonSuccessStatus(t *testing.T) {
	_, store := setupStore(t)
	issuer := newTestIssuer(t, store, &stubDeliverer{statuses: []int{503}}, &sleepRecorder{})

	issuer.IssueRound1(context.Background(), []Registration{{Email: "a@x.edu", Endpoint: "https://a.example", Secret: "s"}})

	tasks, err := store.Tasks.List(context.Background(), repository.TaskFilter{Email: "a@x.edu"})
	require.NoError(t, err)
	require.Equal(t, intPtr(503), tasks[0].StatusCode)
	require.False(t, tasks[0].Delivered())
}

func seedRound1(t *testing.T, store repository.Store, issuer TaskIssuer, email string) models.Task {
	t.Helper()
	ctx := context.Background()
	issuer.IssueRound1(ctx, []Registration{{Email: email, Endpoint: "https://" + email + "/build", Secret: "s-" + email}})

	tasks, err := store.Tasks.List(ctx, repository.TaskFilter{Email: email, Round: 1})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	return tasks[0]
}

func submitRound1(t *testing.T, store repository.Store, task models.Task) {
	t.Helper()
	require.NoError(t, store.Submissions.Upsert(context.Background(), &models.Submission{
		Timestamp: fixedNow, Email: task.Email, Task: task.Task, Round: 1, Nonce: task.Nonce,
		RepoURL: "https://github.com/s/app", CommitSHA: "abc123", PagesURL: "https://s.github.io/app/",
	}))
}

func TestIssueRound2FromRound1Submissions(t *testing.T) {
	_, store := setupStore(t)
	deliverer := &stubDeliverer{}
	issuer := newTestIssuer(t, store, deliverer, &sleepRecorder{})
	ctx := context.Background()

	round1 := seedRound1(t, store, issuer, "a@x.edu")
	seedRound1(t, store, issuer, "b@x.edu")
	submitRound1(t, store, round1)

	summary := issuer.IssueRound2(ctx)
	require.Equal(t, SweepSummary{Processed: 1}, summary)

	tasks, err := store.Tasks.List(ctx, repository.TaskFilter{Round: 2})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	round2 := tasks[0]
	cat, _ := catalog.Default()
	family, err := cat.TemplatesFor(catalog.FamilyFromTaskID(round1.Task))
	require.NoError(t, err)

	require.Equal(t, round1.Task, round2.Task)
	require.NotEqual(t, round1.Nonce, round2.Nonce)
	require.Equal(t, family.Round2[1].Brief, round2.Brief)
	require.Equal(t, round1.Endpoint, round2.Endpoint)
	require.Equal(t, round1.Secret, round2.Secret)
	require.True(t, round2.Delivered())

	again := issuer.IssueRound2(ctx)
	require.Equal(t, SweepSummary{Skipped: 1}, again)
}

func TestIssueRound2WithoutRound1TaskCountsError(t *testing.T) {
	_, store := setupStore(t)
	issuer := newTestIssuer(t, store, &stubDeliverer{}, &sleepRecorder{})

	submitRound1(t, store, models.Task{Email: "ghost@x.edu", Task: "todo-manager-abcde", Nonce: "n"})

	summary := issuer.IssueRound2(context.Background())
	require.Equal(t, SweepSummary{Errors: 1}, summary)
}

func TestRetryRound2UpdatesStatusAndKeepsNonce(t *testing.T) {
	_, store := setupStore(t)
	deliverer := &stubDeliverer{statuses: []int{200}}
	sleeper := &sleepRecorder{}
	issuer := newTestIssuer(t, store, deliverer, sleeper)
	ctx := context.Background()

	for _, email := range []string{"a@x.edu", "b@x.edu"} {
		submitRound1(t, store, seedRound1(t, store, issuer, email))
	}

	deliverer.statuses = []int{500}
	require.Equal(t, SweepSummary{Processed: 2}, issuer.IssueRound2(ctx))

	before, err := store.Tasks.List(ctx, repository.TaskFilter{Round: 2})
	require.NoError(t, err)
	require.Len(t, before, 2)
	for _, task := range before {
		require.Equal(t, intPtr(500), task.StatusCode)
	}

	deliverer.statuses = []int{200, 502}
	sleeper.sleeps = nil
	summary := issuer.RetryRound2(ctx)
	require.Equal(t, SweepSummary{Processed: 1, Errors: 1}, summary)
	require.Equal(t, []time.Duration{2 * time.Second}, sleeper.sleeps)

	after, err := store.Tasks.List(ctx, repository.TaskFilter{Round: 2})
	require.NoError(t, err)
	require.Equal(t, intPtr(200), after[0].StatusCode)
	require.Equal(t, intPtr(502), after[1].StatusCode)
	for i := range after {
		require.Equal(t, before[i].Nonce, after[i].Nonce)
	}

	retried := deliverer.calls[len(deliverer.calls)-2:]
	require.Equal(t, before[0].Nonce, retried[0].Payload.Nonce)

	deliverer.statuses = []int{200}
	require.Equal(t, SweepSummary{Processed: 1, Skipped: 1}, issuer.RetryRound2(ctx))
}
