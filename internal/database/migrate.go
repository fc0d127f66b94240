package database

import (
	"fmt"
	"log"
	"time"

	"eigentask/backend/internal/models"
	"eigentask/backend/internal/scheduling"

	"gorm.io/gorm"
)

// DefaultLegacySessionMinutes is the length given to a migrated session when
// the task has no planned end and no usable planned duration.
const DefaultLegacySessionMinutes = 60

// Migrate creates or updates the tasks and task_sessions tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Task{}, &models.TaskSession{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// MigrateLegacyPlanning turns the planned_* fields of tasks without sessions
// into a single INCOMPLETE session. Only tasks with a planned start and either
// a planned end or a planned duration qualify. Tasks that already have sessions are left
// alone, so running it twice is harmless. It returns the number of sessions
// created.
func MigrateLegacyPlanning(db *gorm.DB) (int, error) {
	created := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		var tasks []models.Task
		err := tx.Where("planned_start_at IS NOT NULL").
			Where("planned_end_at IS NOT NULL OR planned_duration IS NOT NULL").
			Where("NOT EXISTS (SELECT 1 FROM task_sessions WHERE task_sessions.task_id = tasks.id)").
			Order("id").
			Find(&tasks).Error
		if err != nil {
			return fmt.Errorf("failed to load legacy planned tasks: %w", err)
		}

		for _, task := range tasks {
			session, ok := legacySession(task)
			if !ok {
				log.Printf("migrate: skipping task %d, planned end is not after planned start", task.ID)
				continue
			}
			if err := tx.Create(&session).Error; err != nil {
				return fmt.Errorf("failed to create session for task %d: %w", task.ID, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func legacySession(task models.Task) (models.TaskSession, bool) {
	start := scheduling.Normalize(*task.PlannedStartAt)

	var end time.Time
	switch {
	case task.PlannedEndAt != nil:
		end = scheduling.Normalize(*task.PlannedEndAt)
	case task.PlannedDuration != nil && *task.PlannedDuration > 0:
		end = start.Add(time.Duration(*task.PlannedDuration) * time.Minute)
	default:
		end = start.Add(DefaultLegacySessionMinutes * time.Minute)
	}

	iv := scheduling.Interval{Start: start, End: end}
	if !iv.Valid() {
		return models.TaskSession{}, false
	}
	return models.TaskSession{
		TaskID:           task.ID,
		ScheduledStartAt: iv.Start,
		ScheduledEndAt:   iv.End,
		Status:           models.SessionStatusIncomplete,
	}, true
}
