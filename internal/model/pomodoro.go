package model

import (
	"time"

	"pomodoro/focusd/internal/cycle"
)

const (
	StatusIdle     = "idle"
	StatusCounting = "counting"
	StatusExpired  = "expired"

	SessionCompleted = "completed"
)

const (
	DefaultFocusMinutes      = 25
	DefaultShortBreakMinutes = 5
	DefaultLongBreakMinutes  = 15
)

// NoFocusedTask marks the absence of a focused task.
const NoFocusedTask int64 = -1

type Settings struct {
	FocusMinutes      int    `json:"focusMinutes"`
	ShortBreakMinutes int    `json:"shortBreakMinutes"`
	LongBreakMinutes  int    `json:"longBreakMinutes"`
	NotificationSound string `json:"notificationSound"`
}

func DefaultSettings() Settings {
	return Settings{
		FocusMinutes:      DefaultFocusMinutes,
		ShortBreakMinutes: DefaultShortBreakMinutes,
		LongBreakMinutes:  DefaultLongBreakMinutes,
	}
}

type TimerState struct {
	CycleIndex       int         `json:"cycleIndex"`
	Phase            cycle.Phase `json:"phase"`
	SecondsRemaining int         `json:"secondsRemaining"`
	TotalSeconds     int         `json:"totalSeconds"`
	IsRunning        bool        `json:"isRunning"`
	Status           string      `json:"status"`
	FocusedTaskID    int64       `json:"focusedTaskId"`
	// StartedAt is when the current phase first started counting and
	// ElapsedSeconds how long it has counted since, excluding stopped time.
	// Both cover only the current process: a countdown resumed after a
	// restart reports the resume time.
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	ElapsedSeconds int        `json:"elapsedSeconds"`
}

func (s TimerState) HasFocusedTask() bool {
	return s.FocusedTaskID != NoFocusedTask
}

type PomodoroSession struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	Phase           cycle.Phase `json:"phase"`
	CycleIndex      int         `json:"cycleIndex"`
	DurationSeconds int         `json:"durationSeconds"`
	TaskID          *int64      `json:"taskId,omitempty"`
	StartedAt       time.Time   `json:"startedAt"`
	EndedAt         time.Time   `json:"endedAt"`
	Status          string      `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
}
