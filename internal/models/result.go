package models

import "time"

// Result is one check's verdict for one submission. Rows are append-only.
type Result struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
	Email     string    `gorm:"size:255;not null;index:idx_results_email_task,priority:1" json:"email"`
	Task      string    `gorm:"size:128;not null;index:idx_results_email_task,priority:2" json:"task"`
	Round     int       `gorm:"not null" json:"round"`
	RepoURL   string    `gorm:"size:512;not null" json:"repo_url"`
	CommitSHA string    `gorm:"size:64;not null" json:"commit_sha"`
	PagesURL  string    `gorm:"size:512;not null" json:"pages_url"`
	CheckName string    `gorm:"size:64;not null" json:"check_name"`
	Score     float64   `gorm:"not null" json:"score"`
	Reason    string    `gorm:"type:text" json:"reason"`
	Logs      string    `gorm:"type:text" json:"logs"`
}

// TableName pins the table name used by the store.
func (Result) TableName() string {
	return "results"
}
