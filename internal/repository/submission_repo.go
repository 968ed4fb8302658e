package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-appgrader/internal/models"
)

// SubmissionFilter narrows submission queries. Zero values are ignored.
type SubmissionFilter struct {
	Email string
	Task  string
	Round int
}

// SubmissionRepository exposes persistence helpers for accepted submissions.
type SubmissionRepository interface {
	Upsert(ctx context.Context, submission *models.Submission) error
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	Exists(ctx context.Context, filter SubmissionFilter) (bool, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Upsert(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}, {Name: "task"}, {Name: "round"}},
		DoUpdates: clause.AssignmentColumns([]string{"timestamp", "nonce", "repo_url", "commit_sha", "pages_url"}),
	}).Create(submission).Error
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := applySubmissionFilter(r.db.WithContext(ctx), filter).Order("id ASC").Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) Exists(ctx context.Context, filter SubmissionFilter) (bool, error) {
	var count int64
	if err := applySubmissionFilter(r.db.WithContext(ctx).Model(&models.Submission{}), filter).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func applySubmissionFilter(query *gorm.DB, filter SubmissionFilter) *gorm.DB {
	if filter.Email != "" {
		query = query.Where("email = ?", filter.Email)
	}
	if filter.Task != "" {
		query = query.Where("task = ?", filter.Task)
	}
	if filter.Round > 0 {
		query = query.Where("round = ?", filter.Round)
	}
	return query
}
