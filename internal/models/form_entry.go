package models

import "time"

// FormEntry maps a student to the endpoint and shared secret used for task delivery.
type FormEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
	Email     string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Endpoint  string    `gorm:"size:512;not null" json:"endpoint"`
	Secret    string    `gorm:"size:255;not null" json:"-"`
	RepoURL   string    `gorm:"size:512" json:"repo_url"`
}

// TableName pins the table name used by the store.
func (FormEntry) TableName() string {
	return "form_entries"
}

// All returns the models managed by the store, in migration order.
func All() []interface{} {
	return []interface{}{&Task{}, &Submission{}, &Result{}, &FormEntry{}}
}
