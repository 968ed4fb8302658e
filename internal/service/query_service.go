package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/gema-appgrader/internal/dto"
	"github.com/noah-isme/gema-appgrader/internal/repository"
)

// QueryService exposes the read-only views over the store.
type QueryService interface {
	Results(ctx context.Context, email, task string) ([]dto.ResultResponse, error)
	Tasks(ctx context.Context, email string, round int) ([]dto.TaskResponse, error)
	Submissions(ctx context.Context, email string, round int) ([]dto.SubmissionResponse, error)
}

type queryService struct {
	store repository.Store
}

// NewQueryService constructs the query service.
func NewQueryService(store repository.Store) QueryService {
	return &queryService{store: store}
}

func (s *queryService) Results(ctx context.Context, email, task string) ([]dto.ResultResponse, error) {
	results, err := s.store.Results.List(ctx, repository.ResultFilter{Email: normalizeEmail(email), Task: strings.TrimSpace(task)})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	items := make([]dto.ResultResponse, 0, len(results))
	for _, result := range results {
		items = append(items, dto.NewResultResponse(result))
	}
	return items, nil
}

func (s *queryService) Tasks(ctx context.Context, email string, round int) ([]dto.TaskResponse, error) {
	tasks, err := s.store.Tasks.List(ctx, repository.TaskFilter{Email: normalizeEmail(email), Round: round})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	items := make([]dto.TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, dto.NewTaskResponse(task))
	}
	return items, nil
}

func (s *queryService) Submissions(ctx context.Context, email string, round int) ([]dto.SubmissionResponse, error) {
	submissions, err := s.store.Submissions.List(ctx, repository.SubmissionFilter{Email: normalizeEmail(email), Round: round})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	items := make([]dto.SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		items = append(items, dto.NewSubmissionResponse(submission))
	}
	return items, nil
}
