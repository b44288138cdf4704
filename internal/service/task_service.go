package service

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "pomodoro/focusd/internal/errors"
	"pomodoro/focusd/internal/model"
	"pomodoro/focusd/internal/repository"
	"pomodoro/focusd/internal/timer"
)

// TaskService manages tasks and which of them the timer is focused on.
type TaskService struct {
	tasks  *repository.TaskRepository
	timers *timer.Manager
}

type CreateTaskInput struct {
	Title       string
	Description string
	Target      int
}

type FocusView struct {
	TaskID int64       `json:"taskId"`
	Task   *model.Task `json:"task,omitempty"`
}

func NewTaskService(tasks *repository.TaskRepository, timers *timer.Manager) *TaskService {
	return &TaskService{tasks: tasks, timers: timers}
}

func (s *TaskService) Create(ctx context.Context, userID string, input CreateTaskInput) (*model.Task, *apperrors.APIError) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.BadRequest("invalid_title", "title is required")
	}
	target := input.Target
	if target == 0 {
		target = 1
	}
	if target < 0 {
		return nil, apperrors.BadRequest("invalid_target", "target must be positive")
	}

	now := time.Now().UTC()
	task := model.Task{
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Target:      target,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tasks.Create(ctx, &task); err != nil {
		return nil, apperrors.Internal("failed to create task")
	}
	return &task, nil
}

func (s *TaskService) List(ctx context.Context, userID string) ([]model.Task, *apperrors.APIError) {
	tasks, err := s.tasks.List(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to list tasks")
	}
	return tasks, nil
}

// Delete removes the task and clears the focus if it pointed at it.
func (s *TaskService) Delete(ctx context.Context, userID string, taskID int64) *apperrors.APIError {
	err := s.tasks.Delete(ctx, userID, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return taskNotFound()
	}
	if err != nil {
		return apperrors.Internal("failed to delete task")
	}

	store, err := s.timers.Store(ctx, userID)
	if err != nil {
		return apperrors.FromTimer(err, "failed to load timer")
	}
	if store.Focus() == taskID {
		if _, err := store.ClearFocus(ctx); err != nil {
			return apperrors.FromTimer(err, "failed to clear focus")
		}
	}
	return nil
}

func (s *TaskService) Complete(ctx context.Context, userID string, taskID int64) (*model.Task, *apperrors.APIError) {
	err := s.tasks.MarkCompleted(ctx, userID, taskID, time.Now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, taskNotFound()
	}
	if err != nil {
		return nil, apperrors.Internal("failed to complete task")
	}
	return s.get(ctx, userID, taskID)
}

func (s *TaskService) GetFocus(ctx context.Context, userID string) (*FocusView, *apperrors.APIError) {
	store, err := s.timers.Store(ctx, userID)
	if err != nil {
		return nil, apperrors.FromTimer(err, "failed to load timer")
	}

	view := &FocusView{TaskID: store.Focus()}
	if view.TaskID == model.NoFocusedTask {
		return view, nil
	}
	task, getErr := s.tasks.Get(ctx, userID, view.TaskID)
	if getErr == nil {
		view.Task = task
	} else if !errors.Is(getErr, repository.ErrNotFound) {
		return nil, apperrors.Internal("failed to get task")
	}
	return view, nil
}

// SetFocus points the timer at one of the user's tasks.
func (s *TaskService) SetFocus(ctx context.Context, userID string, taskID int64) (*FocusView, *apperrors.APIError) {
	task, apiErr := s.get(ctx, userID, taskID)
	if apiErr != nil {
		return nil, apiErr
	}

	store, err := s.timers.Store(ctx, userID)
	if err != nil {
		return nil, apperrors.FromTimer(err, "failed to load timer")
	}
	if _, err := store.SetFocus(ctx, taskID); err != nil {
		return nil, apperrors.FromTimer(err, "failed to set focus")
	}
	return &FocusView{TaskID: taskID, Task: task}, nil
}

func (s *TaskService) ClearFocus(ctx context.Context, userID string) (*FocusView, *apperrors.APIError) {
	store, err := s.timers.Store(ctx, userID)
	if err != nil {
		return nil, apperrors.FromTimer(err, "failed to load timer")
	}
	if _, err := store.ClearFocus(ctx); err != nil {
		return nil, apperrors.FromTimer(err, "failed to clear focus")
	}
	return &FocusView{TaskID: model.NoFocusedTask}, nil
}

func (s *TaskService) get(ctx context.Context, userID string, taskID int64) (*model.Task, *apperrors.APIError) {
	task, err := s.tasks.Get(ctx, userID, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, taskNotFound()
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get task")
	}
	return task, nil
}

func taskNotFound() *apperrors.APIError {
	return apperrors.NotFound("task_not_found", "task not found")
}
