package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-appgrader/internal/models"
)

// ResultFilter narrows result queries. Zero values are ignored.
type ResultFilter struct {
	Email string
	Task  string
}

// ResultRepository exposes append and read helpers for evaluation results.
type ResultRepository interface {
	Append(ctx context.Context, result *models.Result) error
	List(ctx context.Context, filter ResultFilter) ([]models.Result, error)
}

type resultRepository struct {
	db *gorm.DB
}

// NewResultRepository constructs a result repository.
func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepository{db: db}
}

func (r *resultRepository) Append(ctx context.Context, result *models.Result) error {
	result.ID = 0
	return r.db.WithContext(ctx).Create(result).Error
}

func (r *resultRepository) List(ctx context.Context, filter ResultFilter) ([]models.Result, error) {
	query := r.db.WithContext(ctx)
	if filter.Email != "" {
		query = query.Where("email = ?", filter.Email)
	}
	if filter.Task != "" {
		query = query.Where("task = ?", filter.Task)
	}

	var results []models.Result
	if err := query.Order("id ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
