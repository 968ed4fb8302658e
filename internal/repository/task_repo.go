package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-appgrader/internal/models"
)

// TaskFilter narrows task queries. Zero values are ignored.
type TaskFilter struct {
	Email string
	Task  string
	Round int
}

// TaskRepository exposes persistence helpers for issued tasks.
type TaskRepository interface {
	Upsert(ctx context.Context, task *models.Task) error
	List(ctx context.Context, filter TaskFilter) ([]models.Task, error)
	Exists(ctx context.Context, filter TaskFilter) (bool, error)
	UpdateStatusCode(ctx context.Context, email, task string, round int, statusCode *int) error
}

type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository constructs a task repository.
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Upsert(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}, {Name: "task"}, {Name: "round"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"timestamp", "nonce", "brief", "attachments", "checks",
			"evaluation_url", "endpoint", "statuscode", "secret",
		}),
	}).Create(task).Error
}

func (r *taskRepository) List(ctx context.Context, filter TaskFilter) ([]models.Task, error) {
	var tasks []models.Task
	if err := applyTaskFilter(r.db.WithContext(ctx), filter).Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepository) Exists(ctx context.Context, filter TaskFilter) (bool, error) {
	var count int64
	if err := applyTaskFilter(r.db.WithContext(ctx).Model(&models.Task{}), filter).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *taskRepository) UpdateStatusCode(ctx context.Context, email, task string, round int, statusCode *int) error {
	result := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("email = ? AND task = ? AND round = ?", email, task, round).
		Update("statuscode", statusCode)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func applyTaskFilter(query *gorm.DB, filter TaskFilter) *gorm.DB {
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
