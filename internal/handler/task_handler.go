package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "pomodoro/focusd/internal/errors"
	"pomodoro/focusd/internal/middleware"
	"pomodoro/focusd/internal/service"
)

type TaskHandler struct {
	taskService *service.TaskService
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Target      int    `json:"target"`
}

type setFocusRequest struct {
	TaskID *int64 `json:"taskId"`
}

func NewTaskHandler(taskService *service.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

func (h *TaskHandler) List(c *gin.Context) {
	tasks, apiErr := h.taskService.List(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *TaskHandler) Create(c *gin.Context) {
	var req createTaskRequest
	if !bindJSON(c, &req) {
		return
	}

	task, apiErr := h.taskService.Create(c.Request.Context(), middleware.UserID(c), service.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Target:      req.Target,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task})
}

func (h *TaskHandler) Delete(c *gin.Context) {
	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}
	if apiErr := h.taskService.Delete(c.Request.Context(), middleware.UserID(c), taskID); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) Complete(c *gin.Context) {
	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}
	task, apiErr := h.taskService.Complete(c.Request.Context(), middleware.UserID(c), taskID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

func (h *TaskHandler) GetFocus(c *gin.Context) {
	focus, apiErr := h.taskService.GetFocus(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"focus": focus})
}

func (h *TaskHandler) SetFocus(c *gin.Context) {
	var req setFocusRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.TaskID == nil {
		writeError(c, apperrors.BadRequest("invalid_task_id", "taskId is required"))
		return
	}

	focus, apiErr := h.taskService.SetFocus(c.Request.Context(), middleware.UserID(c), *req.TaskID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"focus": focus})
}

func (h *TaskHandler) ClearFocus(c *gin.Context) {
	focus, apiErr := h.taskService.ClearFocus(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"focus": focus})
}

func taskIDParam(c *gin.Context) (int64, bool) {
	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || taskID <= 0 {
		writeError(c, apperrors.BadRequest("invalid_task_id", "task id must be a positive integer"))
		return 0, false
	}
	return taskID, true
}
