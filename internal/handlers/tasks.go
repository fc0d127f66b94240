package handlers

import (
	"net/http"

	"eigentask/backend/internal/middleware"
	"eigentask/backend/internal/models"
	"eigentask/backend/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type TaskHandler struct {
	db             *gorm.DB
	taskService    services.TaskService
	sessionService services.SessionService
}

// TaskResponse is a task with the counts of its sessions.
type TaskResponse struct {
	models.Task
	services.SessionCounts
}

func NewTaskHandler(db *gorm.DB, taskService services.TaskService, sessionService services.SessionService) *TaskHandler {
	return &TaskHandler{db: db, taskService: taskService, sessionService: sessionService}
}

func (h *TaskHandler) withCounts(db *gorm.DB, tasks []models.Task) ([]TaskResponse, error) {
	ids := make([]int64, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	counts, err := h.sessionService.CountsByTask(db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		out[i] = TaskResponse{Task: t, SessionCounts: counts[t.ID]}
	}
	return out, nil
}

func (h *TaskHandler) respondTask(c *gin.Context, db *gorm.DB, status int, task models.Task) {
	out, err := h.withCounts(db, []models.Task{task})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, out[0])
}

func (h *TaskHandler) ListTasks(c *gin.Context) {
	limit, ok := intQuery(c, "limit", services.DefaultTaskListLimit)
	if !ok {
		return
	}
	offset, ok := intQuery(c, "offset", 0)
	if !ok {
		return
	}

	db := h.db.WithContext(c.Request.Context())
	tasks, err := h.taskService.ListTasks(db, middleware.UserSub(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	out, err := h.withCounts(db, tasks)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var input services.TaskCreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	db := h.db.WithContext(c.Request.Context())
	task, err := h.taskService.CreateTask(db, middleware.UserSub(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondTask(c, db, http.StatusCreated, task)
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	id, ok := int64Param(c, "task_id")
	if !ok {
		return
	}

	db := h.db.WithContext(c.Request.Context())
	task, err := h.taskService.GetTask(db, id, middleware.UserSub(c))
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondTask(c, db, http.StatusOK, task)
}

// UpdateTask serves both PATCH and PUT; absent fields are left unchanged.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id, ok := int64Param(c, "task_id")
	if !ok {
		return
	}
	var input services.TaskUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	db := h.db.WithContext(c.Request.Context())
	task, err := h.taskService.UpdateTask(db, id, middleware.UserSub(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondTask(c, db, http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, ok := int64Param(c, "task_id")
	if !ok {
		return
	}

	err := h.taskService.DeleteTask(h.db.WithContext(c.Request.Context()), id, middleware.UserSub(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
