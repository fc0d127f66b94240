package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"eigentask/backend/internal/cache"
	"eigentask/backend/internal/models"

	"gorm.io/gorm"
)

// CachedTaskService decorates a TaskService with a read-through cache.
// Single tasks live under task:<owner>:<id>, list pages under
// tasks:<owner>:<limit>:<offset>. Any write drops the task key and every list
// page of the owner.
var _ TaskService = (*CachedTaskService)(nil)

type CachedTaskService struct {
	taskService TaskService
	cache       cache.Cache
	ttl         time.Duration
}

func NewCachedTaskService(taskService TaskService, c cache.Cache, ttl time.Duration) *CachedTaskService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedTaskService{
		taskService: taskService,
		cache:       c,
		ttl:         ttl,
	}
}

func taskCacheKey(owner string, id int64) string {
	return fmt.Sprintf("task:%s:%d", owner, id)
}

func taskListCacheKey(owner string, limit, offset int) string {
	return fmt.Sprintf("tasks:%s:%d:%d", owner, limit, offset)
}

// escapeGlob quotes the glob metacharacters of s so an owner subject can be
// embedded in a key pattern.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func contextOf(db *gorm.DB) context.Context {
	if db.Statement != nil && db.Statement.Context != nil {
		return db.Statement.Context
	}
	return context.Background()
}

func (s *CachedTaskService) CreateTask(db *gorm.DB, owner string, input TaskCreateInput) (models.Task, error) {
	task, err := s.taskService.CreateTask(db, owner, input)
	if err != nil {
		return task, err
	}

	ctx := contextOf(db)
	s.invalidateLists(ctx, owner)
	s.store(ctx, taskCacheKey(owner, task.ID), task)
	return task, nil
}

func (s *CachedTaskService) GetTask(db *gorm.DB, id int64, owner string) (models.Task, error) {
	ctx := contextOf(db)
	key := taskCacheKey(owner, id)

	var cached models.Task
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		cached.CreatedBySub = owner
		return cached, nil
	}

	task, err := s.taskService.GetTask(db, id, owner)
	if err != nil {
		return task, err
	}
	s.store(ctx, key, task)
	return task, nil
}

func (s *CachedTaskService) ListTasks(db *gorm.DB, owner string, limit, offset int) ([]models.Task, error) {
	ctx := contextOf(db)
	key := taskListCacheKey(owner, limit, offset)

	var cached []models.Task
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		for i := range cached {
			cached[i].CreatedBySub = owner
		}
		return cached, nil
	}

	tasks, err := s.taskService.ListTasks(db, owner, limit, offset)
	if err != nil {
		return tasks, err
	}
	s.store(ctx, key, tasks)
	return tasks, nil
}

func (s *CachedTaskService) UpdateTask(db *gorm.DB, id int64, owner string, input TaskUpdateInput) (models.Task, error) {
	task, err := s.taskService.UpdateTask(db, id, owner, input)
	if err != nil {
		return task, err
	}

	s.InvalidateTask(contextOf(db), owner, id)
	return task, nil
}

func (s *CachedTaskService) DeleteTask(db *gorm.DB, id int64, owner string) error {
	if err := s.taskService.DeleteTask(db, id, owner); err != nil {
		return err
	}

	s.InvalidateTask(contextOf(db), owner, id)
	return nil
}

// InvalidateTask drops a task and its owner's list pages. Session writes call
// it because they can change the status of the task.
func (s *CachedTaskService) InvalidateTask(ctx context.Context, owner string, id int64) {
	if err := s.cache.Delete(ctx, taskCacheKey(owner, id)); err != nil {
		log.Printf("cache: failed to drop task %d: %v", id, err)
	}
	s.invalidateLists(ctx, owner)
}

func (s *CachedTaskService) invalidateLists(ctx context.Context, owner string) {
	pattern := fmt.Sprintf("tasks:%s:*", escapeGlob(owner))
	if err := s.cache.DeletePattern(ctx, pattern); err != nil {
		log.Printf("cache: failed to drop task lists: %v", err)
	}
}

func (s *CachedTaskService) store(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		log.Printf("cache: failed to store %s: %v", key, err)
	}
}

func (s *CachedTaskService) CacheStats() map[string]interface{} {
	return s.cache.Stats()
}
