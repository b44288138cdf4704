package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pomodoro/focusd/internal/handler"
	"pomodoro/focusd/internal/middleware"
	"pomodoro/focusd/internal/service"
)

func New(
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	pomodoroHandler *handler.PomodoroHandler,
	taskHandler *handler.TaskHandler,
	corsOrigins []string,
	logger zerolog.Logger,
) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestLogger(logger), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	protected := api.Group("")
	protected.Use(middleware.Auth(authService))

	timer := protected.Group("/timer")
	timer.GET("/state", pomodoroHandler.GetState)
	timer.GET("/stream", pomodoroHandler.StreamState)
	timer.GET("/cycle", pomodoroHandler.GetCycle)
	timer.POST("/start", pomodoroHandler.Start)
	timer.POST("/stop", pomodoroHandler.Stop)
	timer.POST("/phase", pomodoroHandler.SwitchPhase)

	settings := protected.Group("/settings")
	settings.GET("", pomodoroHandler.GetSettings)
	settings.PUT("", pomodoroHandler.UpdateSettings)
	settings.GET("/stream", pomodoroHandler.StreamSettings)

	focus := protected.Group("/focus")
	focus.GET("", taskHandler.GetFocus)
	focus.PUT("", taskHandler.SetFocus)
	focus.DELETE("", taskHandler.ClearFocus)

	tasks := protected.Group("/tasks")
	tasks.GET("", taskHandler.List)
	tasks.POST("", taskHandler.Create)
	tasks.DELETE("/:id", taskHandler.Delete)
	tasks.POST("/:id/complete", taskHandler.Complete)

	protected.GET("/history", pomodoroHandler.GetHistory)

	return engine
}
