package models

import (
	"time"
)

type TaskStatus string

const (
	TaskStatusBacklog   TaskStatus = "BACKLOG"
	TaskStatusPlanned   TaskStatus = "PLANNED"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusRemoved   TaskStatus = "REMOVED"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusBacklog, TaskStatusPlanned, TaskStatusCompleted, TaskStatusRemoved:
		return true
	}
	return false
}

// Task is owned by the user identified by the OIDC subject in CreatedBySub.
type Task struct {
	ID          int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	Title       string     `json:"title" gorm:"type:text;not null"`
	Description *string    `json:"description" gorm:"type:text"`
	Status      TaskStatus `json:"status" gorm:"type:varchar(16);not null;default:'BACKLOG';index"`
	DueAt       *time.Time `json:"due_at"`

	// Legacy planning fields, superseded by sessions.
	PlannedStartAt  *time.Time `json:"planned_start_at"`
	PlannedEndAt    *time.Time `json:"planned_end_at"`
	PlannedDuration *int       `json:"planned_duration"`

	CreatedBySub string    `json:"-" gorm:"size:255;not null;index"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Sessions []TaskSession `json:"-" gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
}

func (Task) TableName() string {
	return "tasks"
}
