package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pomodoro/focusd/internal/middleware"
	"pomodoro/focusd/internal/model"
	"pomodoro/focusd/internal/service"
)

type PomodoroHandler struct {
	pomodoroService *service.PomodoroService
}

type switchPhaseRequest struct {
	Phase string `json:"phase"`
}

type updateSettingsRequest struct {
	FocusMinutes      int    `json:"focusMinutes"`
	ShortBreakMinutes int    `json:"shortBreakMinutes"`
	LongBreakMinutes  int    `json:"longBreakMinutes"`
	NotificationSound string `json:"notificationSound"`
}

func NewPomodoroHandler(pomodoroService *service.PomodoroService) *PomodoroHandler {
	return &PomodoroHandler{pomodoroService: pomodoroService}
}

func (h *PomodoroHandler) GetState(c *gin.Context) {
	state, apiErr := h.pomodoroService.GetState(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *PomodoroHandler) Start(c *gin.Context) {
	state, apiErr := h.pomodoroService.Start(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *PomodoroHandler) Stop(c *gin.Context) {
	state, apiErr := h.pomodoroService.Stop(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *PomodoroHandler) SwitchPhase(c *gin.Context) {
	var req switchPhaseRequest
	if !bindJSON(c, &req) {
		return
	}

	state, apiErr := h.pomodoroService.SwitchPhase(c.Request.Context(), middleware.UserID(c), req.Phase)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *PomodoroHandler) GetCycle(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cycle": h.pomodoroService.Cycle()})
}

// StreamState pushes a "state" event for the current snapshot and every
// change after it until the client disconnects.
func (h *PomodoroHandler) StreamState(c *gin.Context) {
	updates, apiErr := h.pomodoroService.WatchState(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	streamEvents(c, "state", updates)
}

func (h *PomodoroHandler) GetSettings(c *gin.Context) {
	settings, apiErr := h.pomodoroService.GetSettings(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (h *PomodoroHandler) UpdateSettings(c *gin.Context) {
	var req updateSettingsRequest
	if !bindJSON(c, &req) {
		return
	}

	settings, apiErr := h.pomodoroService.UpdateSettings(c.Request.Context(), middleware.UserID(c), model.Settings{
		FocusMinutes:      req.FocusMinutes,
		ShortBreakMinutes: req.ShortBreakMinutes,
		LongBreakMinutes:  req.LongBreakMinutes,
		NotificationSound: req.NotificationSound,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (h *PomodoroHandler) StreamSettings(c *gin.Context) {
	updates, apiErr := h.pomodoroService.WatchSettings(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	streamEvents(c, "settings", updates)
}

func (h *PomodoroHandler) GetHistory(c *gin.Context) {
	limit := 50
	rawLimit := c.Query("limit")
	if rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil {
			limit = parsed
		}
	}

	sessions, apiErr := h.pomodoroService.GetHistory(c.Request.Context(), middleware.UserID(c), limit)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func streamEvents[T any](c *gin.Context, event string, updates <-chan T) {
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(io.Writer) bool {
		value, ok := <-updates
		if !ok {
			return false
		}
		c.SSEvent(event, value)
		return true
	})
}
