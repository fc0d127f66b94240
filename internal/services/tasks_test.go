package services_test

import (
	"testing"
	"time"

	"eigentask/backend/internal/models"
	"eigentask/backend/internal/scheduling"
	"eigentask/backend/internal/services"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type TaskServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	service *services.TaskServiceImpl
}

func (s *TaskServiceTestSuite) SetupTest() {
	s.db = newTestDB(s.T())
	s.service = services.NewTaskService()
}

func (s *TaskServiceTestSuite) create(owner, title string) models.Task {
	task, err := s.service.CreateTask(s.db, owner, services.TaskCreateInput{Title: title})
	s.Require().NoError(err)
	return task
}

func (s *TaskServiceTestSuite) TestCreateDefaults() {
	task, err := s.service.CreateTask(s.db, "u1", services.TaskCreateInput{Title: "  Write report  "})
	s.Require().NoError(err)

	s.NotZero(task.ID)
	s.Equal("Write report", task.Title)
	s.Equal(models.TaskStatusBacklog, task.Status)
	s.Equal("u1", task.CreatedBySub)
	s.Nil(task.PlannedDuration)
}

func (s *TaskServiceTestSuite) TestCreateRejectsBlankTitle() {
	_, err := s.service.CreateTask(s.db, "u1", services.TaskCreateInput{Title: "   "})
	s.True(services.IsValidationError(err))
	s.EqualError(err, "title cannot be blank")
}

func (s *TaskServiceTestSuite) TestCreateWithExplicitStatus() {
	task, err := s.service.CreateTask(s.db, "u1", services.TaskCreateInput{
		Title:  "done already",
		Status: ptr(models.TaskStatusCompleted),
	})
	s.Require().NoError(err)
	s.Equal(models.TaskStatusCompleted, task.Status)

	_, err = s.service.CreateTask(s.db, "u1", services.TaskCreateInput{
		Title:  "bad",
		Status: ptr(models.TaskStatus("ARCHIVED")),
	})
	s.True(services.IsValidationError(err))
}

func (s *TaskServiceTestSuite) TestCreateDerivesPlannedDuration() {
	task, err := s.service.CreateTask(s.db, "u1", services.TaskCreateInput{
		Title:          "planned",
		PlannedStartAt: ptr(at(9, 0)),
		PlannedEndAt:   ptr(at(10, 30)),
	})
	s.Require().NoError(err)
	s.Require().NotNil(task.PlannedDuration)
	s.Equal(90, *task.PlannedDuration)

	_, err = s.service.CreateTask(s.db, "u1", services.TaskCreateInput{
		Title:           "mismatch",
		PlannedStartAt:  ptr(at(9, 0)),
		PlannedEndAt:    ptr(at(10, 30)),
		PlannedDuration: ptr(91),
	})
	s.True(services.IsValidationError(err))
	s.EqualError(err, scheduling.ErrPlannedDurationMismatch.Error())
}

func (s *TaskServiceTestSuite) TestCreateKeepsDurationWithoutBothBounds() {
	task, err := s.service.CreateTask(s.db, "u1", services.TaskCreateInput{
		Title:           "start only",
		PlannedStartAt:  ptr(at(9, 0)),
		PlannedDuration: ptr(45),
	})
	s.Require().NoError(err)
	s.Equal(45, *task.PlannedDuration)
	s.Nil(task.PlannedEndAt)
}

func (s *TaskServiceTestSuite) TestCreateNormalizesTimesToUTC() {
	zone := time.FixedZone("CET", 3600)
	task, err := s.service.CreateTask(s.db, "u1", services.TaskCreateInput{
		Title: "due",
		DueAt: ptr(time.Date(2024, 3, 4, 10, 0, 0, 123456789, zone)),
	})
	s.Require().NoError(err)
	s.Equal(time.Date(2024, 3, 4, 9, 0, 0, 123456000, time.UTC), *task.DueAt)
}

func (s *TaskServiceTestSuite) TestGetIsOwnerScoped() {
	task := s.create("u1", "mine")

	got, err := s.service.GetTask(s.db, task.ID, "u1")
	s.Require().NoError(err)
	s.Equal("mine", got.Title)

	_, err = s.service.GetTask(s.db, task.ID, "u2")
	s.ErrorIs(err, services.ErrTaskNotFound)

	_, err = s.service.GetTask(s.db, task.ID+100, "u1")
	s.ErrorIs(err, services.ErrTaskNotFound)
}

func (s *TaskServiceTestSuite) TestListNewestFirstWithPaging() {
	first := s.create("u1", "first")
	second := s.create("u1", "second")
	third := s.create("u1", "third")
	s.create("u2", "someone else")

	tasks, err := s.service.ListTasks(s.db, "u1", 0, 0)
	s.Require().NoError(err)
	s.Require().Len(tasks, 3)
	s.Equal([]int64{third.ID, second.ID, first.ID}, []int64{tasks[0].ID, tasks[1].ID, tasks[2].ID})

	page, err := s.service.ListTasks(s.db, "u1", 1, 1)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(second.ID, page[0].ID)

	empty, err := s.service.ListTasks(s.db, "nobody", 10, 0)
	s.Require().NoError(err)
	s.NotNil(empty)
	s.Empty(empty)
}

func (s *TaskServiceTestSuite) TestUpdatePartial() {
	task, err := s.service.CreateTask(s.db, "u1", services.TaskCreateInput{
		Title:       "original",
		Description: ptr("keep me"),
	})
	s.Require().NoError(err)

	updated, err := s.service.UpdateTask(s.db, task.ID, "u1", services.TaskUpdateInput{
		Title:  ptr("renamed"),
		Status: ptr(models.TaskStatusCompleted),
	})
	s.Require().NoError(err)
	s.Equal("renamed", updated.Title)
	s.Equal(models.TaskStatusCompleted, updated.Status)
	s.Equal("keep me", *updated.Description)

	stored, err := s.service.GetTask(s.db, task.ID, "u1")
	s.Require().NoError(err)
	s.Equal("renamed", stored.Title)
	s.Equal(models.TaskStatusCompleted, stored.Status)
}

func (s *TaskServiceTestSuite) TestUpdateMergesPlanningFields() {
	task, err := s.service.CreateTask(s.db, "u1", services.TaskCreateInput{
		Title:          "plan",
		PlannedStartAt: ptr(at(9, 0)),
	})
	s.Require().NoError(err)

	updated, err := s.service.UpdateTask(s.db, task.ID, "u1", services.TaskUpdateInput{
		PlannedEndAt: services.Set(at(10, 30)),
	})
	s.Require().NoError(err)
	s.Require().NotNil(updated.PlannedDuration)
	s.Equal(90, *updated.PlannedDuration)

	// Moving the end recomputes a duration that was not supplied.
	updated, err = s.service.UpdateTask(s.db, task.ID, "u1", services.TaskUpdateInput{
		PlannedEndAt: services.Set(at(11, 0)),
	})
	s.Require().NoError(err)
	s.Equal(120, *updated.PlannedDuration)

	_, err = s.service.UpdateTask(s.db, task.ID, "u1", services.TaskUpdateInput{
		PlannedDuration: services.Set(91),
	})
	s.True(services.IsValidationError(err))

	stored, err := s.service.GetTask(s.db, task.ID, "u1")
	s.Require().NoError(err)
	s.Equal(120, *stored.PlannedDuration, "a rejected update leaves the task unchanged")
}

func (s *TaskServiceTestSuite) TestUpdateClearsNullableFields() {
	task, err := s.service.CreateTask(s.db, "u1", services.TaskCreateInput{
		Title:          "plan",
		Description:    ptr("notes"),
		DueAt:          ptr(at(18, 0)),
		PlannedStartAt: ptr(at(9, 0)),
		PlannedEndAt:   ptr(at(10, 30)),
	})
	s.Require().NoError(err)
	s.Require().Equal(90, *task.PlannedDuration)

	updated, err := s.service.UpdateTask(s.db, task.ID, "u1", services.TaskUpdateInput{
		Description:  services.Null[string](),
		DueAt:        services.Null[time.Time](),
		PlannedEndAt: services.Null[time.Time](),
	})
	s.Require().NoError(err)
	s.Nil(updated.Description)
	s.Nil(updated.DueAt)
	s.Nil(updated.PlannedEndAt)
	s.Require().NotNil(updated.PlannedStartAt)
	s.Require().NotNil(updated.PlannedDuration)
	s.Equal(90, *updated.PlannedDuration, "the duration survives as an estimate")

	// Without an end the duration is free to change.
	updated, err = s.service.UpdateTask(s.db, task.ID, "u1", services.TaskUpdateInput{
		PlannedDuration: services.Set(45),
	})
	s.Require().NoError(err)
	s.Equal(45, *updated.PlannedDuration)

	stored, err := s.service.GetTask(s.db, task.ID, "u1")
	s.Require().NoError(err)
	s.Nil(stored.Description)
	s.Nil(stored.DueAt)
	s.Nil(stored.PlannedEndAt)
	s.Equal(45, *stored.PlannedDuration)

	updated, err = s.service.UpdateTask(s.db, task.ID, "u1", services.TaskUpdateInput{
		PlannedDuration: services.Null[int](),
	})
	s.Require().NoError(err)
	s.Nil(updated.PlannedDuration)
}

func (s *TaskServiceTestSuite) TestUpdateRejectsEndBeforeStart() {
	task, err := s.service.CreateTask(s.db, "u1", services.TaskCreateInput{
		Title:          "plan",
		PlannedStartAt: ptr(at(9, 0)),
	})
	s.Require().NoError(err)

	_, err = s.service.UpdateTask(s.db, task.ID, "u1", services.TaskUpdateInput{
		PlannedEndAt: services.Set(at(8, 0)),
	})
	s.EqualError(err, scheduling.ErrPlannedEndBeforeStart.Error())
}

func (s *TaskServiceTestSuite) TestUpdateForeignTask() {
	task := s.create("u1", "mine")

	_, err := s.service.UpdateTask(s.db, task.ID, "u2", services.TaskUpdateInput{Title: ptr("stolen")})
	s.ErrorIs(err, services.ErrTaskNotFound)

	stored, err := s.service.GetTask(s.db, task.ID, "u1")
	s.Require().NoError(err)
	s.Equal("mine", stored.Title)
}

func (s *TaskServiceTestSuite) TestDeleteCascadesToSessions() {
	task := s.create("u1", "doomed")
	other := s.create("u1", "survivor")
	sessions := services.NewSessionService()

	slots := []struct {
		taskID int64
		start  time.Time
	}{
		{task.ID, at(9, 0)},
		{task.ID, at(10, 0)},
		{other.ID, at(11, 0)},
	}
	for _, slot := range slots {
		_, err := sessions.CreateSession(s.db, slot.taskID, "u1", services.SessionCreateInput{
			ScheduledStartAt: slot.start,
			DurationMinutes:  ptr(30),
		})
		s.Require().NoError(err)
	}

	s.Require().NoError(s.service.DeleteTask(s.db, task.ID, "u1"))

	var orphans int64
	s.Require().NoError(s.db.Model(&models.TaskSession{}).Where("task_id = ?", task.ID).Count(&orphans).Error)
	s.Zero(orphans)

	var remaining int64
	s.Require().NoError(s.db.Model(&models.TaskSession{}).Where("task_id = ?", other.ID).Count(&remaining).Error)
	s.Equal(int64(1), remaining)

	_, err := s.service.GetTask(s.db, task.ID, "u1")
	s.ErrorIs(err, services.ErrTaskNotFound)
}

func (s *TaskServiceTestSuite) TestDeleteForeignTask() {
	task := s.create("u1", "mine")

	s.ErrorIs(s.service.DeleteTask(s.db, task.ID, "u2"), services.ErrTaskNotFound)

	_, err := s.service.GetTask(s.db, task.ID, "u1")
	s.NoError(err)
}

func TestTaskServiceTestSuite(t *testing.T) {
	suite.Run(t, new(TaskServiceTestSuite))
}
