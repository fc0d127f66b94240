package services

import (
	"fmt"

	"eigentask/backend/internal/models"
	"eigentask/backend/internal/scheduling"

	"gorm.io/gorm"
)

// sessionsOverlap reports whether any session of any task owned by owner
// overlaps iv. excludeID leaves one session out of the comparison so that a
// session can be moved without colliding with itself.
func sessionsOverlap(db *gorm.DB, owner string, iv scheduling.Interval, excludeID *int64) (bool, error) {
	q := db.Model(&models.TaskSession{}).
		Joins("JOIN tasks ON tasks.id = task_sessions.task_id").
		Where("tasks.created_by_sub = ?", owner).
		Where("task_sessions.scheduled_start_at < ? AND task_sessions.scheduled_end_at > ?", iv.End, iv.Start)
	if excludeID != nil {
		q = q.Where("task_sessions.id <> ?", *excludeID)
	}

	var ids []int64
	if err := q.Limit(1).Pluck("task_sessions.id", &ids).Error; err != nil {
		return false, fmt.Errorf("check session overlap: %w", err)
	}
	return len(ids) > 0, nil
}
