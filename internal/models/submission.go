package models

import "time"

// Submission is a student's claim that a task was completed. Stored in the repos table,
// at most one row per (email, task, round); a resubmission replaces the prior row.
type Submission struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
	Email     string    `gorm:"size:255;not null;uniqueIndex:idx_repos_email_task_round,priority:1" json:"email"`
	Task      string    `gorm:"size:128;not null;uniqueIndex:idx_repos_email_task_round,priority:2" json:"task"`
	Round     int       `gorm:"not null;uniqueIndex:idx_repos_email_task_round,priority:3" json:"round"`
	Nonce     string    `gorm:"size:64;not null" json:"nonce"`
	RepoURL   string    `gorm:"size:512;not null" json:"repo_url"`
	CommitSHA string    `gorm:"size:64;not null" json:"commit_sha"`
	PagesURL  string    `gorm:"size:512;not null" json:"pages_url"`
}

// TableName pins the table name used by the store.
func (Submission) TableName() string {
	return "repos"
}
