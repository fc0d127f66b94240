package handlers

import (
	"eigentask/backend/internal/auth"
	"eigentask/backend/internal/middleware"
	"eigentask/backend/internal/monitoring"
	"eigentask/backend/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RouterDeps is everything the HTTP layer is built from. RateLimiter,
// Invalidator and StatsSources are optional.
type RouterDeps struct {
	DB             *gorm.DB
	TaskService    services.TaskService
	SessionService services.SessionService
	Invalidator    TaskCacheInvalidator

	Authenticator *auth.Authenticator
	Auth          *AuthHandler
	CookieName    string

	FrontendOrigin string
	RateLimiter    *middleware.RateLimiter

	Metrics      *monitoring.Metrics
	Health       *monitoring.HealthChecker
	StatsSources map[string]monitoring.StatsFunc
}

func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RecoveryWithLog())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(deps.FrontendOrigin))
	router.Use(deps.Metrics.Middleware())
	if deps.RateLimiter != nil {
		router.Use(deps.RateLimiter.Middleware())
	}

	router.GET("/", Root)
	router.GET("/health", monitoring.HealthHandler(deps.Health, deps.Metrics))
	router.GET("/health/ready", monitoring.ReadinessHandler(deps.Health))
	router.GET("/health/live", monitoring.LivenessHandler(deps.Metrics))
	router.GET("/metrics", monitoring.MetricsHandler(deps.Metrics, deps.StatsSources))

	authGroup := router.Group("/auth")
	authGroup.GET("/login", deps.Auth.Login)
	authGroup.GET("/callback", deps.Auth.Callback)
	authGroup.GET("/logout", deps.Auth.Logout)
	authGroup.GET("/status", middleware.OptionalUser(deps.Authenticator, deps.CookieName), deps.Auth.Status)

	protected := router.Group("/")
	protected.Use(middleware.RequireUser(deps.Authenticator, deps.CookieName))

	protected.GET("/users/me", Me)

	tasks := NewTaskHandler(deps.DB, deps.TaskService, deps.SessionService)
	protected.GET("/tasks", tasks.ListTasks)
	protected.POST("/tasks", tasks.CreateTask)
	protected.GET("/tasks/:task_id", tasks.GetTask)
	protected.PATCH("/tasks/:task_id", tasks.UpdateTask)
	protected.PUT("/tasks/:task_id", tasks.UpdateTask)
	protected.DELETE("/tasks/:task_id", tasks.DeleteTask)

	sessions := NewSessionHandler(deps.DB, deps.SessionService, deps.Invalidator)
	protected.GET("/tasks/:task_id/sessions", sessions.ListSessions)
	protected.POST("/tasks/:task_id/sessions", sessions.CreateSession)
	protected.GET("/tasks/:task_id/sessions/:session_id", sessions.GetSession)
	protected.PATCH("/tasks/:task_id/sessions/:session_id", sessions.UpdateSession)
	protected.DELETE("/tasks/:task_id/sessions/:session_id", sessions.DeleteSession)
	protected.GET("/sessions", sessions.Timeline)

	return router
}
