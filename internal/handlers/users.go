package handlers

import (
	"net/http"

	"eigentask/backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Me returns the authenticated caller.
func Me(c *gin.Context) {
	claims, ok := middleware.UserClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	c.JSON(http.StatusOK, claims.User())
}

func Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Hello World"})
}
