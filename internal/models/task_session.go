package models

import "time"

type SessionStatus string

const (
	SessionStatusIncomplete SessionStatus = "INCOMPLETE"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

func (s SessionStatus) Valid() bool {
	return s == SessionStatusIncomplete || s == SessionStatusCompleted
}

// TaskSession is a scheduled block of work on a task. Its owner is the owner
// of the task it belongs to.
type TaskSession struct {
	ID               int64         `json:"id" gorm:"primaryKey;autoIncrement"`
	TaskID           int64         `json:"task_id" gorm:"not null;index"`
	ScheduledStartAt time.Time     `json:"scheduled_start_at" gorm:"not null"`
	ScheduledEndAt   time.Time     `json:"scheduled_end_at" gorm:"not null"`
	Status           SessionStatus `json:"status" gorm:"type:varchar(16);not null;default:'INCOMPLETE';index"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func (TaskSession) TableName() string {
	return "task_sessions"
}
