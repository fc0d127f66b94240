package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"eigentask/backend/internal/models"
	"eigentask/backend/internal/scheduling"

	"gorm.io/gorm"
)

const (
	DefaultTaskListLimit = 100
	MaxTaskListLimit     = 500
)

type TaskCreateInput struct {
	Title           string             `json:"title"`
	Description     *string            `json:"description"`
	Status          *models.TaskStatus `json:"status"`
	DueAt           *time.Time         `json:"due_at"`
	PlannedStartAt  *time.Time         `json:"planned_start_at"`
	PlannedEndAt    *time.Time         `json:"planned_end_at"`
	PlannedDuration *int               `json:"planned_duration"`
}

// TaskUpdateInput is a partial update: absent fields keep their stored value.
// The nullable fields are cleared by an explicit null.
type TaskUpdateInput struct {
	Title           *string             `json:"title"`
	Description     Nullable[string]    `json:"description"`
	Status          *models.TaskStatus  `json:"status"`
	DueAt           Nullable[time.Time] `json:"due_at"`
	PlannedStartAt  Nullable[time.Time] `json:"planned_start_at"`
	PlannedEndAt    Nullable[time.Time] `json:"planned_end_at"`
	PlannedDuration Nullable[int]       `json:"planned_duration"`
}

type TaskService interface {
	CreateTask(db *gorm.DB, owner string, input TaskCreateInput) (models.Task, error)
	GetTask(db *gorm.DB, id int64, owner string) (models.Task, error)
	ListTasks(db *gorm.DB, owner string, limit, offset int) ([]models.Task, error)
	UpdateTask(db *gorm.DB, id int64, owner string, input TaskUpdateInput) (models.Task, error)
	DeleteTask(db *gorm.DB, id int64, owner string) error
}

type TaskServiceImpl struct{}

func NewTaskService() *TaskServiceImpl {
	return &TaskServiceImpl{}
}

func (s *TaskServiceImpl) CreateTask(db *gorm.DB, owner string, input TaskCreateInput) (models.Task, error) {
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return models.Task{}, err
	}

	status := models.TaskStatusBacklog
	if input.Status != nil {
		if !input.Status.Valid() {
			return models.Task{}, &ValidationError{Message: fmt.Sprintf("invalid task status %q", *input.Status)}
		}
		status = *input.Status
	}

	task := models.Task{
		Title:          title,
		Description:    input.Description,
		Status:         status,
		DueAt:          normalizeOptional(input.DueAt),
		PlannedStartAt: normalizeOptional(input.PlannedStartAt),
		PlannedEndAt:   normalizeOptional(input.PlannedEndAt),
		CreatedBySub:   owner,
	}

	duration, err := scheduling.CoercePlannedDuration(task.PlannedStartAt, task.PlannedEndAt, input.PlannedDuration, input.PlannedDuration != nil)
	if err != nil {
		return models.Task{}, newValidationError(err)
	}
	task.PlannedDuration = duration

	if err := db.Create(&task).Error; err != nil {
		return models.Task{}, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

func (s *TaskServiceImpl) GetTask(db *gorm.DB, id int64, owner string) (models.Task, error) {
	return findTaskForOwner(db, id, owner)
}

// ListTasks returns the owner's tasks, newest first.
func (s *TaskServiceImpl) ListTasks(db *gorm.DB, owner string, limit, offset int) ([]models.Task, error) {
	if limit <= 0 {
		limit = DefaultTaskListLimit
	}
	if limit > MaxTaskListLimit {
		limit = MaxTaskListLimit
	}
	if offset < 0 {
		offset = 0
	}

	tasks := make([]models.Task, 0)
	err := db.Where("created_by_sub = ?", owner).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *TaskServiceImpl) UpdateTask(db *gorm.DB, id int64, owner string, input TaskUpdateInput) (models.Task, error) {
	var task models.Task
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		task, err = findTaskForOwner(tx, id, owner)
		if err != nil {
			return err
		}

		if err := applyTaskUpdate(&task, input); err != nil {
			return err
		}

		return tx.Model(&task).
			Select("title", "description", "status", "due_at", "planned_start_at", "planned_end_at", "planned_duration").
			Updates(&task).Error
	})
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// DeleteTask removes the task together with all of its sessions.
func (s *TaskServiceImpl) DeleteTask(db *gorm.DB, id int64, owner string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		task, err := findTaskForOwner(tx, id, owner)
		if err != nil {
			return err
		}
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.TaskSession{}).Error; err != nil {
			return fmt.Errorf("delete sessions of task %d: %w", task.ID, err)
		}
		if err := tx.Delete(&task).Error; err != nil {
			return fmt.Errorf("delete task %d: %w", task.ID, err)
		}
		return nil
	})
}

func applyTaskUpdate(task *models.Task, input TaskUpdateInput) error {
	if input.Title != nil {
		title, err := normalizeTitle(*input.Title)
		if err != nil {
			return err
		}
		task.Title = title
	}
	if input.Description.Set {
		task.Description = input.Description.Value
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return &ValidationError{Message: fmt.Sprintf("invalid task status %q", *input.Status)}
		}
		task.Status = *input.Status
	}
	if input.DueAt.Set {
		task.DueAt = normalizeOptional(input.DueAt.Value)
	}
	if input.PlannedStartAt.Set {
		task.PlannedStartAt = normalizeOptional(input.PlannedStartAt.Value)
	}
	if input.PlannedEndAt.Set {
		task.PlannedEndAt = normalizeOptional(input.PlannedEndAt.Value)
	}

	// With a bound cleared the stored duration stays as the estimate.
	duration := task.PlannedDuration
	if input.PlannedDuration.Set {
		duration = input.PlannedDuration.Value
	}
	coerced, err := scheduling.CoercePlannedDuration(task.PlannedStartAt, task.PlannedEndAt, duration, input.PlannedDuration.Set)
	if err != nil {
		return newValidationError(err)
	}
	task.PlannedDuration = coerced
	return nil
}

func findTaskForOwner(db *gorm.DB, id int64, owner string) (models.Task, error) {
	var task models.Task
	err := db.Where("id = ? AND created_by_sub = ?", id, owner).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Task{}, ErrTaskNotFound
		}
		return models.Task{}, fmt.Errorf("find task %d: %w", id, err)
	}
	return task, nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", &ValidationError{Message: "title cannot be blank"}
	}
	return title, nil
}

func normalizeOptional(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	n := scheduling.Normalize(*t)
	return &n
}
