package dto

import "github.com/noah-isme/gema-appgrader/internal/models"

// BuildRequest is the task payload received by the student build agent.
type BuildRequest struct {
	Email         string              `json:"email" validate:"required,email"`
	Secret        string              `json:"secret" validate:"required,max=100"`
	Task          string              `json:"task" validate:"required,task_slug"`
	Round         int                 `json:"round" validate:"required,oneof=1 2"`
	Nonce         string              `json:"nonce" validate:"required,uuid"`
	Brief         string              `json:"brief" validate:"required,max=5000"`
	Checks        []string            `json:"checks"`
	EvaluationURL string              `json:"evaluation_url" validate:"required,url"`
	Attachments   []models.Attachment `json:"attachments" validate:"omitempty,dive"`
}

// BuildResponse reports what the agent published.
type BuildResponse struct {
	RepoURL            string `json:"repo_url"`
	CommitSHA          string `json:"commit_sha"`
	PagesURL           string `json:"pages_url"`
	PagesEnabled       bool   `json:"pages_enabled"`
	EvaluationNotified bool   `json:"evaluation_notified"`
}
