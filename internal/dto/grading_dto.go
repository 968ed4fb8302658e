package dto

import (
	"time"

	"github.com/noah-isme/gema-appgrader/internal/models"
)

// NotifyRequest is the build-completion notification sent by a student agent.
type NotifyRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Task      string `json:"task" validate:"required,task_slug"`
	Round     int    `json:"round" validate:"required,oneof=1 2"`
	Nonce     string `json:"nonce" validate:"required"`
	RepoURL   string `json:"repo_url" validate:"required,url"`
	CommitSHA string `json:"commit_sha" validate:"required"`
	PagesURL  string `json:"pages_url" validate:"required,url"`
}

// TaskPayload is the body delivered to a student endpoint.
type TaskPayload struct {
	Email         string              `json:"email"`
	Secret        string              `json:"secret"`
	Task          string              `json:"task"`
	Round         int                 `json:"round"`
	Nonce         string              `json:"nonce"`
	Brief         string              `json:"brief"`
	Checks        []string            `json:"checks"`
	EvaluationURL string              `json:"evaluation_url"`
	Attachments   []models.Attachment `json:"attachments"`
}

// NewTaskPayload builds the delivery body for a stored task.
func NewTaskPayload(task models.Task) TaskPayload {
	return TaskPayload{
		Email:         task.Email,
		Secret:        task.Secret,
		Task:          task.Task,
		Round:         task.Round,
		Nonce:         task.Nonce,
		Brief:         task.Brief,
		Checks:        task.CheckList(),
		EvaluationURL: task.EvaluationURL,
		Attachments:   task.AttachmentList(),
	}
}

// TaskResponse exposes an issued task without its shared secret or nonce. The nonce
// only travels in the delivery payload; anyone holding it can submit for the student.
type TaskResponse struct {
	ID            uint                `json:"id"`
	Timestamp     time.Time           `json:"timestamp"`
	Email         string              `json:"email"`
	Task          string              `json:"task"`
	Round         int                 `json:"round"`
	Nonce         string              `json:"-"`
	Brief         string              `json:"brief"`
	Attachments   []models.Attachment `json:"attachments"`
	Checks        []string            `json:"checks"`
	EvaluationURL string              `json:"evaluation_url"`
	Endpoint      string              `json:"endpoint"`
	StatusCode    *int                `json:"statuscode"`
}

// NewTaskResponse maps a task model.
func NewTaskResponse(task models.Task) TaskResponse {
	return TaskResponse{
		ID:            task.ID,
		Timestamp:     task.Timestamp,
		Email:         task.Email,
		Task:          task.Task,
		Round:         task.Round,
		Nonce:         task.Nonce,
		Brief:         task.Brief,
		Attachments:   task.AttachmentList(),
		Checks:        task.CheckList(),
		EvaluationURL: task.EvaluationURL,
		Endpoint:      task.Endpoint,
		StatusCode:    task.StatusCode,
	}
}

// SubmissionResponse exposes an accepted submission. The nonce stays server side.
type SubmissionResponse struct {
	ID        uint      `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Email     string    `json:"email"`
	Task      string    `json:"task"`
	Round     int       `json:"round"`
	Nonce     string    `json:"-"`
	RepoURL   string    `json:"repo_url"`
	CommitSHA string    `json:"commit_sha"`
	PagesURL  string    `json:"pages_url"`
}

// NewSubmissionResponse maps a submission model.
func NewSubmissionResponse(submission models.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:        submission.ID,
		Timestamp: submission.Timestamp,
		Email:     submission.Email,
		Task:      submission.Task,
		Round:     submission.Round,
		Nonce:     submission.Nonce,
		RepoURL:   submission.RepoURL,
		CommitSHA: submission.CommitSHA,
		PagesURL:  submission.PagesURL,
	}
}

// ResultResponse exposes one check verdict.
type ResultResponse struct {
	ID        uint      `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Email     string    `json:"email"`
	Task      string    `json:"task"`
	Round     int       `json:"round"`
	RepoURL   string    `json:"repo_url"`
	CommitSHA string    `json:"commit_sha"`
	PagesURL  string    `json:"pages_url"`
	CheckName string    `json:"check_name"`
	Score     float64   `json:"score"`
	Reason    string    `json:"reason"`
	Logs      string    `json:"logs"`
}

// NewResultResponse maps a result model.
func NewResultResponse(result models.Result) ResultResponse {
	return ResultResponse{
		ID:        result.ID,
		Timestamp: result.Timestamp,
		Email:     result.Email,
		Task:      result.Task,
		Round:     result.Round,
		RepoURL:   result.RepoURL,
		CommitSHA: result.CommitSHA,
		PagesURL:  result.PagesURL,
		CheckName: result.CheckName,
		Score:     result.Score,
		Reason:    result.Reason,
		Logs:      result.Logs,
	}
}

// FormEntryRequest registers a student's delivery endpoint.
type FormEntryRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Endpoint string `json:"endpoint" validate:"required,url"`
	Secret   string `json:"secret" validate:"required,max=100"`
	RepoURL  string `json:"repo_url" validate:"omitempty,url"`
}

// FormEntryResponse exposes a registration without its secret.
type FormEntryResponse struct {
	Email     string    `json:"email"`
	Endpoint  string    `json:"endpoint"`
	RepoURL   string    `json:"repo_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewFormEntryResponse maps a form entry model.
func NewFormEntryResponse(entry models.FormEntry) FormEntryResponse {
	return FormEntryResponse{
		Email:     entry.Email,
		Endpoint:  entry.Endpoint,
		RepoURL:   entry.RepoURL,
		Timestamp: entry.Timestamp,
	}
}
