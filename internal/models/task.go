package models

import (
	"encoding/json"
	"net/http"
	"time"

	"gorm.io/datatypes"
)

// Attachment is a named blob handed to the student alongside a brief.
type Attachment struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	URL  string `json:"url" yaml:"url" validate:"required"`
}

// Task is one issued assignment instance. At most one row exists per (email, task, round).
type Task struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Timestamp     time.Time      `gorm:"not null" json:"timestamp"`
	Email         string         `gorm:"size:255;not null;uniqueIndex:idx_tasks_email_task_round,priority:1" json:"email"`
	Task          string         `gorm:"size:128;not null;uniqueIndex:idx_tasks_email_task_round,priority:2" json:"task"`
	Round         int            `gorm:"not null;uniqueIndex:idx_tasks_email_task_round,priority:3" json:"round"`
	Nonce         string         `gorm:"size:64;not null" json:"nonce"`
	Brief         string         `gorm:"type:text;not null" json:"brief"`
	Attachments   datatypes.JSON `gorm:"type:json" json:"-"`
	Checks        datatypes.JSON `gorm:"type:json" json:"-"`
	EvaluationURL string         `gorm:"size:512;not null" json:"evaluation_url"`
	Endpoint      string         `gorm:"size:512;not null" json:"endpoint"`
	StatusCode    *int           `gorm:"column:statuscode" json:"statuscode"`
	Secret        string         `gorm:"size:255;not null" json:"-"`
}

// TableName pins the table name used by the store.
func (Task) TableName() string {
	return "tasks"
}

// SetAttachments serializes the attachment list into the JSON column.
func (t *Task) SetAttachments(attachments []Attachment) {
	t.Attachments = encodeJSONList(attachments)
}

// AttachmentList decodes the stored attachments, preserving order.
func (t Task) AttachmentList() []Attachment {
	var attachments []Attachment
	if len(t.Attachments) == 0 {
		return []Attachment{}
	}
	if err := json.Unmarshal(t.Attachments, &attachments); err != nil || attachments == nil {
		return []Attachment{}
	}
	return attachments
}

// SetChecks serializes the checklist into the JSON column.
func (t *Task) SetChecks(checks []string) {
	t.Checks = encodeJSONList(checks)
}

// CheckList decodes the stored checklist, preserving order.
func (t Task) CheckList() []string {
	var checks []string
	if len(t.Checks) == 0 {
		return []string{}
	}
	if err := json.Unmarshal(t.Checks, &checks); err != nil || checks == nil {
		return []string{}
	}
	return checks
}

// Delivered reports whether the last delivery attempt was acknowledged with 200.
func (t Task) Delivered() bool {
	return t.StatusCode != nil && *t.StatusCode == http.StatusOK
}

func encodeJSONList[T any](items []T) datatypes.JSON {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(data)
}
