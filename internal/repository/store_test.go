package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-appgrader/internal/models"
)

func TestTaskRepositoryUpsertReplacesOnCompositeKey(t *testing.T) {
	store := NewStore(setupStoreDB(t))
	ctx := context.Background()

	first := &models.Task{Timestamp: time.Now(), Email: "a@example.com", Task: "captcha-solver-1a2b3", Round: 1, Nonce: "n1", Brief: "first"}
	require.NoError(t, store.Tasks.Upsert(ctx, first))

	second := &models.Task{Timestamp: time.Now(), Email: "a@example.com", Task: "captcha-solver-1a2b3", Round: 1, Nonce: "n2", Brief: "second"}
	require.NoError(t, store.Tasks.Upsert(ctx, second))

	tasks, err := store.Tasks.List(ctx, TaskFilter{Email: "a@example.com"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "n2", tasks[0].Nonce)
	require.Equal(t, "second", tasks[0].Brief)

	round2 := &models.Task{Timestamp: time.Now(), Email: "a@example.com", Task: "captcha-solver-1a2b3", Round: 2, Nonce: "n3"}
	require.NoError(t, store.Tasks.Upsert(ctx, round2))

	tasks, err = store.Tasks.List(ctx, TaskFilter{Email: "a@example.com", Round: 2})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "n3", tasks[0].Nonce)
}

func TestTaskRepositoryExistsAndStatusCode(t *testing.T) {
	store := NewStore(setupStoreDB(t))
	ctx := context.Background()

	exists, err := store.Tasks.Exists(ctx, TaskFilter{Email: "b@example.com", Round: 1})
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, store.Tasks.Upsert(ctx, &models.Task{Email: "b@example.com", Task: "todo-manager-00000", Round: 1, Nonce: "x"}))

	exists, err = store.Tasks.Exists(ctx, TaskFilter{Email: "b@example.com", Round: 1})
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = store.Tasks.Exists(ctx, TaskFilter{Email: "b@example.com", Task: "other", Round: 1})
	require.NoError(t, err)
	require.False(t, exists)

	code := 200
	require.NoError(t, store.Tasks.UpdateStatusCode(ctx, "b@example.com", "todo-manager-00000", 1, &code))

	tasks, err := store.Tasks.List(ctx, TaskFilter{Email: "b@example.com"})
	require.NoError(t, err)
	require.NotNil(t, tasks[0].StatusCode)
	require.True(t, tasks[0].Delivered())

	err = store.Tasks.UpdateStatusCode(ctx, "missing@example.com", "todo-manager-00000", 1, &code)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestTaskRepositoryPersistsAttachments(t *testing.T) {
	store := NewStore(setupStoreDB(t))
	ctx := context.Background()

	task := &models.Task{Email: "c@example.com", Task: "weather-dashboard-abcde", Round: 1, Nonce: "n"}
	task.SetAttachments([]models.Attachment{{Name: "sample.png", URL: "data:image/png;base64,AAAA"}})
	task.SetChecks([]string{"Repo has MIT license"})
	require.NoError(t, store.Tasks.Upsert(ctx, task))

	tasks, err := store.Tasks.List(ctx, TaskFilter{Task: "weather-dashboard-abcde"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, []models.Attachment{{Name: "sample.png", URL: "data:image/png;base64,AAAA"}}, tasks[0].AttachmentList())
	require.Equal(t, []string{"Repo has MIT license"}, tasks[0].CheckList())
}

func TestSubmissionRepositoryUpsertAndFilter(t *testing.T) {
	store := NewStore(setupStoreDB(t))
	ctx := context.Background()

	require.NoError(t, store.Submissions.Upsert(ctx, &models.Submission{Email: "d@example.com", Task: "t-1", Round: 1, Nonce: "n", RepoURL: "https://github.com/d/one", CommitSHA: "aaa"}))
	require.NoError(t, store.Submissions.Upsert(ctx, &models.Submission{Email: "d@example.com", Task: "t-1", Round: 1, Nonce: "n", RepoURL: "https://github.com/d/one", CommitSHA: "bbb"}))
	require.NoError(t, store.Submissions.Upsert(ctx, &models.Submission{Email: "d@example.com", Task: "t-1", Round: 2, Nonce: "m", RepoURL: "https://github.com/d/one", CommitSHA: "ccc"}))

	items, err := store.Submissions.List(ctx, SubmissionFilter{Email: "d@example.com", Round: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "bbb", items[0].CommitSHA)

	items, err = store.Submissions.List(ctx, SubmissionFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)

	exists, err := store.Submissions.Exists(ctx, SubmissionFilter{Email: "d@example.com", Task: "t-1", Round: 2})
	require.NoError(t, err)
	require.True(t, exists)
}

func TestResultRepositoryAppendsInOrder(t *testing.T) {
	store := NewStore(setupStoreDB(t))
	ctx := context.Background()

	for i, name := range []string{"MIT License", "README Quality", "MIT License"} {
		require.NoError(t, store.Results.Append(ctx, &models.Result{Email: "e@example.com", Task: "t-1", Round: 1, CheckName: name, Score: float64(i) / 2}))
	}
	require.NoError(t, store.Results.Append(ctx, &models.Result{Email: "other@example.com", Task: "t-1", Round: 1, CheckName: "MIT License"}))

	results, err := store.Results.List(ctx, ResultFilter{Email: "e@example.com", Task: "t-1"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "MIT License", results[0].CheckName)
	require.Equal(t, "README Quality", results[1].CheckName)
	require.Equal(t, 1.0, results[2].Score)

	all, err := store.Results.List(ctx, ResultFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
}

func TestFormEntryRepositoryUpsertByEmail(t *testing.T) {
	store := NewStore(setupStoreDB(t))
	ctx := context.Background()

	require.NoError(t, store.Forms.Upsert(ctx, &models.FormEntry{Email: "f@example.com", Endpoint: "https://one.test/api", Secret: "s1"}))
	require.NoError(t, store.Forms.Upsert(ctx, &models.FormEntry{Email: "f@example.com", Endpoint: "https://two.test/api", Secret: "s2"}))

	entries, err := store.Forms.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry, err := store.Forms.GetByEmail(ctx, "f@example.com")
	require.NoError(t, err)
	require.Equal(t, "https://two.test/api", entry.Endpoint)
	require.Equal(t, "s2", entry.Secret)

	_, err = store.Forms.GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func setupStoreDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}
