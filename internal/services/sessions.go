package services

import (
	"errors"
	"fmt"
	"time"

	"eigentask/backend/internal/models"
	"eigentask/backend/internal/scheduling"

	"gorm.io/gorm"
)

type SessionCreateInput struct {
	ScheduledStartAt time.Time  `json:"scheduled_start_at"`
	ScheduledEndAt   *time.Time `json:"scheduled_end_at"`
	DurationMinutes  *int       `json:"duration_minutes"`
}

// SessionUpdateInput is a partial update: nil fields keep their stored value.
type SessionUpdateInput struct {
	ScheduledStartAt *time.Time            `json:"scheduled_start_at"`
	ScheduledEndAt   *time.Time            `json:"scheduled_end_at"`
	Status           *models.SessionStatus `json:"status"`
}

type SessionFilter struct {
	DateFrom *time.Time
	DateTo   *time.Time
	Status   *models.SessionStatus
}

// CreateSessionResult is the outcome of scheduling a session. StatusChange is
// set when the new session moved its task to another status.
type CreateSessionResult struct {
	Session      models.TaskSession
	StatusChange *scheduling.TaskStatusChange
}

// TimelineEntry is a session annotated with the title of its task.
type TimelineEntry struct {
	models.TaskSession `gorm:"embedded"`
	TaskTitle          string `json:"task_title"`
}

type SessionCounts struct {
	Total     int64 `json:"sessions_count"`
	Completed int64 `json:"completed_sessions_count"`
}

type SessionService interface {
	CreateSession(db *gorm.DB, taskID int64, owner string, input SessionCreateInput) (CreateSessionResult, error)
	GetSession(db *gorm.DB, taskID, sessionID int64, owner string) (models.TaskSession, error)
	UpdateSession(db *gorm.DB, taskID, sessionID int64, owner string, input SessionUpdateInput) (models.TaskSession, error)
	DeleteSession(db *gorm.DB, taskID, sessionID int64, owner string) error
	ListSessionsForTask(db *gorm.DB, taskID int64, owner string, filter SessionFilter) ([]models.TaskSession, error)
	ListSessionsInRange(db *gorm.DB, owner string, from, to time.Time) ([]TimelineEntry, error)
	CountsByTask(db *gorm.DB, taskIDs []int64) (map[int64]SessionCounts, error)
}

type SessionServiceImpl struct{}

func NewSessionService() *SessionServiceImpl {
	return &SessionServiceImpl{}
}

// CreateSession schedules a new INCOMPLETE session on the owner's task. The
// overlap check, the first-session count, the insert and the task status
// update commit together.
func (s *SessionServiceImpl) CreateSession(db *gorm.DB, taskID int64, owner string, input SessionCreateInput) (CreateSessionResult, error) {
	if input.ScheduledStartAt.IsZero() {
		return CreateSessionResult{}, &ValidationError{Message: "scheduled_start_at is required"}
	}
	iv, err := scheduling.ResolveInterval(input.ScheduledStartAt, input.ScheduledEndAt, input.DurationMinutes)
	if err != nil {
		return CreateSessionResult{}, newValidationError(err)
	}

	var result CreateSessionResult
	err = db.Transaction(func(tx *gorm.DB) error {
		task, err := findTaskForOwner(tx, taskID, owner)
		if err != nil {
			return err
		}

		overlaps, err := sessionsOverlap(tx, owner, iv, nil)
		if err != nil {
			return err
		}
		if overlaps {
			return ErrSessionOverlap
		}

		var existing int64
		if err := tx.Model(&models.TaskSession{}).Where("task_id = ?", task.ID).Count(&existing).Error; err != nil {
			return fmt.Errorf("count sessions of task %d: %w", task.ID, err)
		}

		session := models.TaskSession{
			TaskID:           task.ID,
			ScheduledStartAt: iv.Start,
			ScheduledEndAt:   iv.End,
			Status:           models.SessionStatusIncomplete,
		}
		if err := tx.Create(&session).Error; err != nil {
			return fmt.Errorf("create session: %w", err)
		}

		change := scheduling.FirstSessionTransition(task, existing)
		if change != nil {
			err := tx.Model(&models.Task{}).
				Where("id = ?", task.ID).
				Update("status", change.To).Error
			if err != nil {
				return fmt.Errorf("update status of task %d: %w", task.ID, err)
			}
		}

		result = CreateSessionResult{Session: session, StatusChange: change}
		return nil
	})
	if err != nil {
		return CreateSessionResult{}, err
	}
	return result, nil
}

func (s *SessionServiceImpl) GetSession(db *gorm.DB, taskID, sessionID int64, owner string) (models.TaskSession, error) {
	return findSessionForOwner(db, taskID, sessionID, owner)
}

func (s *SessionServiceImpl) UpdateSession(db *gorm.DB, taskID, sessionID int64, owner string, input SessionUpdateInput) (models.TaskSession, error) {
	if input.Status != nil && !input.Status.Valid() {
		return models.TaskSession{}, &ValidationError{Message: "status must be INCOMPLETE or COMPLETED"}
	}

	var session models.TaskSession
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = findSessionForOwner(tx, taskID, sessionID, owner)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if input.ScheduledStartAt != nil || input.ScheduledEndAt != nil {
			iv := scheduling.Interval{Start: session.ScheduledStartAt, End: session.ScheduledEndAt}
			if input.ScheduledStartAt != nil {
				iv.Start = scheduling.Normalize(*input.ScheduledStartAt)
			}
			if input.ScheduledEndAt != nil {
				iv.End = scheduling.Normalize(*input.ScheduledEndAt)
			}
			if !iv.Valid() {
				return newValidationError(scheduling.ErrEndNotAfterStart)
			}

			overlaps, err := sessionsOverlap(tx, owner, iv, &session.ID)
			if err != nil {
				return err
			}
			if overlaps {
				return ErrSessionOverlap
			}
			updates["scheduled_start_at"] = iv.Start
			updates["scheduled_end_at"] = iv.End
		}
		if input.Status != nil {
			updates["status"] = *input.Status
		}
		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&session).Updates(updates).Error; err != nil {
			return fmt.Errorf("update session %d: %w", session.ID, err)
		}
		session, err = findSessionForOwner(tx, taskID, sessionID, owner)
		return err
	})
	if err != nil {
		return models.TaskSession{}, err
	}
	return session, nil
}

// DeleteSession hard-deletes the session. The task keeps its status even when
// its last session goes away.
func (s *SessionServiceImpl) DeleteSession(db *gorm.DB, taskID, sessionID int64, owner string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		session, err := findSessionForOwner(tx, taskID, sessionID, owner)
		if err != nil {
			return err
		}
		if err := tx.Delete(&session).Error; err != nil {
			return fmt.Errorf("delete session %d: %w", session.ID, err)
		}
		return nil
	})
}

// ListSessionsForTask returns the sessions of one task that intersect the
// optional [DateFrom, DateTo] range, inclusive on both ends.
func (s *SessionServiceImpl) ListSessionsForTask(db *gorm.DB, taskID int64, owner string, filter SessionFilter) ([]models.TaskSession, error) {
	q := db.Model(&models.TaskSession{}).
		Joins("JOIN tasks ON tasks.id = task_sessions.task_id").
		Where("tasks.id = ? AND tasks.created_by_sub = ?", taskID, owner)
	if filter.DateFrom != nil {
		q = q.Where("task_sessions.scheduled_end_at >= ?", scheduling.Normalize(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		q = q.Where("task_sessions.scheduled_start_at <= ?", scheduling.Normalize(*filter.DateTo))
	}
	if filter.Status != nil {
		q = q.Where("task_sessions.status = ?", *filter.Status)
	}

	sessions := make([]models.TaskSession, 0)
	if err := q.Order("task_sessions.scheduled_start_at ASC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions of task %d: %w", taskID, err)
	}
	return sessions, nil
}

// ListSessionsInRange is the timeline query: every session of the owner that
// overlaps (from, to), across all tasks, ordered by start.
func (s *SessionServiceImpl) ListSessionsInRange(db *gorm.DB, owner string, from, to time.Time) ([]TimelineEntry, error) {
	if !from.Before(to) {
		return nil, &ValidationError{Message: "from must be before to"}
	}

	entries := make([]TimelineEntry, 0)
	err := db.Table("task_sessions").
		Select("task_sessions.*, tasks.title AS task_title").
		Joins("JOIN tasks ON tasks.id = task_sessions.task_id").
		Where("tasks.created_by_sub = ?", owner).
		Where("task_sessions.scheduled_start_at < ? AND task_sessions.scheduled_end_at > ?",
			scheduling.Normalize(to), scheduling.Normalize(from)).
		Order("task_sessions.scheduled_start_at ASC").
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions in range: %w", err)
	}
	return entries, nil
}

// CountsByTask returns total and completed session counts per task id in one
// aggregate query. Every requested id is present in the result.
func (s *SessionServiceImpl) CountsByTask(db *gorm.DB, taskIDs []int64) (map[int64]SessionCounts, error) {
	counts := make(map[int64]SessionCounts, len(taskIDs))
	if len(taskIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		TaskID    int64
		Total     int64
		Completed int64
	}
	err := db.Model(&models.TaskSession{}).
		Select("task_id, COUNT(id) AS total, SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS completed", models.SessionStatusCompleted).
		Where("task_id IN ?", taskIDs).
		Group("task_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count sessions by task: %w", err)
	}

	for _, id := range taskIDs {
		counts[id] = SessionCounts{}
	}
	for _, row := range rows {
		counts[row.TaskID] = SessionCounts{Total: row.Total, Completed: row.Completed}
	}
	return counts, nil
}

func findSessionForOwner(db *gorm.DB, taskID, sessionID int64, owner string) (models.TaskSession, error) {
	var session models.TaskSession
	err := db.Model(&models.TaskSession{}).
		Joins("JOIN tasks ON tasks.id = task_sessions.task_id").
		Where("task_sessions.id = ? AND task_sessions.task_id = ? AND tasks.created_by_sub = ?", sessionID, taskID, owner).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.TaskSession{}, ErrSessionNotFound
		}
		return models.TaskSession{}, fmt.Errorf("find session %d: %w", sessionID, err)
	}
	return session, nil
}
