package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-appgrader/internal/models"
)

// FormEntryRepository exposes persistence helpers for student registrations.
type FormEntryRepository interface {
	Upsert(ctx context.Context, entry *models.FormEntry) error
	List(ctx context.Context) ([]models.FormEntry, error)
	GetByEmail(ctx context.Context, email string) (models.FormEntry, error)
}

type formEntryRepository struct {
	db *gorm.DB
}

// NewFormEntryRepository constructs a form entry repository.
func NewFormEntryRepository(db *gorm.DB) FormEntryRepository {
	return &formEntryRepository{db: db}
}

func (r *formEntryRepository) Upsert(ctx context.Context, entry *models.FormEntry) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"timestamp", "endpoint", "secret", "repo_url"}),
	}).Create(entry).Error
}

func (r *formEntryRepository) List(ctx context.Context) ([]models.FormEntry, error) {
	var entries []models.FormEntry
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *formEntryRepository) GetByEmail(ctx context.Context, email string) (models.FormEntry, error) {
	var entry models.FormEntry
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&entry).Error; err != nil {
		return models.FormEntry{}, err
	}
	return entry, nil
}
