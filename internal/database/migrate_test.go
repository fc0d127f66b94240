package database

import (
	"testing"
	"time"

	"eigentask/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateLegacyPlanning(t *testing.T) {
	pool := newSQLitePool(t)
	db := pool.DB

	start := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)
	duration := 30
	zero := 0

	withEnd := models.Task{Title: "end", CreatedBySub: "u1", PlannedStartAt: &start, PlannedEndAt: &end}
	withDuration := models.Task{Title: "duration", CreatedBySub: "u1", PlannedStartAt: &start, PlannedDuration: &duration}
	zeroDuration := models.Task{Title: "zero", CreatedBySub: "u1", PlannedStartAt: &start, PlannedDuration: &zero}
	startOnly := models.Task{Title: "start only", CreatedBySub: "u1", PlannedStartAt: &start}
	unplanned := models.Task{Title: "unplanned", CreatedBySub: "u1"}
	alreadyScheduled := models.Task{Title: "scheduled", CreatedBySub: "u1", PlannedStartAt: &start, PlannedEndAt: &end}
	for _, task := range []*models.Task{&withEnd, &withDuration, &zeroDuration, &startOnly, &unplanned, &alreadyScheduled} {
		require.NoError(t, db.Create(task).Error)
	}
	require.NoError(t, db.Create(&models.TaskSession{
		TaskID:           alreadyScheduled.ID,
		ScheduledStartAt: start.Add(24 * time.Hour),
		ScheduledEndAt:   start.Add(25 * time.Hour),
		Status:           models.SessionStatusCompleted,
	}).Error)

	created, err := MigrateLegacyPlanning(db)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	sessionFor := func(taskID int64) []models.TaskSession {
		var sessions []models.TaskSession
		require.NoError(t, db.Where("task_id = ?", taskID).Find(&sessions).Error)
		return sessions
	}

	got := sessionFor(withEnd.ID)
	require.Len(t, got, 1)
	assert.True(t, got[0].ScheduledEndAt.Equal(end))
	assert.Equal(t, models.SessionStatusIncomplete, got[0].Status)

	got = sessionFor(withDuration.ID)
	require.Len(t, got, 1)
	assert.True(t, got[0].ScheduledEndAt.Equal(start.Add(30*time.Minute)))

	got = sessionFor(zeroDuration.ID)
	require.Len(t, got, 1)
	assert.True(t, got[0].ScheduledEndAt.Equal(start.Add(DefaultLegacySessionMinutes*time.Minute)))

	assert.Empty(t, sessionFor(startOnly.ID))
	assert.Empty(t, sessionFor(unplanned.ID))
	assert.Len(t, sessionFor(alreadyScheduled.ID), 1)

	again, err := MigrateLegacyPlanning(db)
	require.NoError(t, err)
	assert.Zero(t, again)
}
