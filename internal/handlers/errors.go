package handlers

import (
	"errors"
	"log"
	"net/http"

	"eigentask/backend/internal/services"

	"github.com/gin-gonic/gin"
)

// respondError maps service errors onto HTTP responses. Unexpected errors are
// logged and hidden behind a generic body.
func respondError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	switch {
	case errors.Is(err, services.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": validationErr.Message})
	case errors.Is(err, services.ErrSessionOverlap):
		c.JSON(http.StatusConflict, gin.H{"error": "session_overlap", "message": err.Error()})
	default:
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process request"})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": message})
}
