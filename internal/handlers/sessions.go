package handlers

import (
	"context"
	"log"
	"net/http"

	"eigentask/backend/internal/middleware"
	"eigentask/backend/internal/models"
	"eigentask/backend/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// TaskCacheInvalidator drops cached reads of a task whose status changed as a
// side effect of a session write.
type TaskCacheInvalidator interface {
	InvalidateTask(ctx context.Context, owner string, id int64)
}

type SessionHandler struct {
	db             *gorm.DB
	sessionService services.SessionService
	invalidator    TaskCacheInvalidator
}

// NewSessionHandler builds the session endpoints. invalidator may be nil when
// task reads are not cached.
func NewSessionHandler(db *gorm.DB, sessionService services.SessionService, invalidator TaskCacheInvalidator) *SessionHandler {
	return &SessionHandler{db: db, sessionService: sessionService, invalidator: invalidator}
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	taskID, ok := int64Param(c, "task_id")
	if !ok {
		return
	}

	var filter services.SessionFilter
	if filter.DateFrom, ok = timeQuery(c, "date_from"); !ok {
		return
	}
	if filter.DateTo, ok = timeQuery(c, "date_to"); !ok {
		return
	}
	raw := c.Query("session_status")
	if raw == "" {
		raw = c.Query("status")
	}
	if raw != "" {
		status := models.SessionStatus(raw)
		if !status.Valid() {
			badRequest(c, "session_status must be INCOMPLETE or COMPLETED")
			return
		}
		filter.Status = &status
	}

	sessions, err := h.sessionService.ListSessionsForTask(h.db.WithContext(c.Request.Context()), taskID, middleware.UserSub(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	taskID, ok := int64Param(c, "task_id")
	if !ok {
		return
	}
	var input services.SessionCreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	owner := middleware.UserSub(c)
	result, err := h.sessionService.CreateSession(h.db.WithContext(c.Request.Context()), taskID, owner, input)
	if err != nil {
		respondError(c, err)
		return
	}

	if change := result.StatusChange; change != nil {
		log.Printf("task %d moved from %s to %s", change.TaskID, change.From, change.To)
		if h.invalidator != nil {
			h.invalidator.InvalidateTask(c.Request.Context(), owner, change.TaskID)
		}
	}
	c.JSON(http.StatusCreated, result.Session)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	taskID, ok := int64Param(c, "task_id")
	if !ok {
		return
	}
	sessionID, ok := int64Param(c, "session_id")
	if !ok {
		return
	}

	session, err := h.sessionService.GetSession(h.db.WithContext(c.Request.Context()), taskID, sessionID, middleware.UserSub(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) UpdateSession(c *gin.Context) {
	taskID, ok := int64Param(c, "task_id")
	if !ok {
		return
	}
	sessionID, ok := int64Param(c, "session_id")
	if !ok {
		return
	}
	var input services.SessionUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	session, err := h.sessionService.UpdateSession(h.db.WithContext(c.Request.Context()), taskID, sessionID, middleware.UserSub(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) DeleteSession(c *gin.Context) {
	taskID, ok := int64Param(c, "task_id")
	if !ok {
		return
	}
	sessionID, ok := int64Param(c, "session_id")
	if !ok {
		return
	}

	err := h.sessionService.DeleteSession(h.db.WithContext(c.Request.Context()), taskID, sessionID, middleware.UserSub(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Timeline lists the caller's sessions that overlap [from, to), each with
// the title of its task.
func (h *SessionHandler) Timeline(c *gin.Context) {
	from, ok := timeQuery(c, "from")
	if !ok {
		return
	}
	to, ok := timeQuery(c, "to")
	if !ok {
		return
	}
	if from == nil || to == nil {
		badRequest(c, "from and to are required")
		return
	}
	if !from.Before(*to) {
		badRequest(c, "from must be before to")
		return
	}

	entries, err := h.sessionService.ListSessionsInRange(h.db.WithContext(c.Request.Context()), middleware.UserSub(c), *from, *to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
