package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pomodoro/focusd/internal/cycle"
	"pomodoro/focusd/internal/model"
)

// SessionRepository keeps the history of finished phases.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Insert(ctx context.Context, session *model.PomodoroSession) error {
	var taskID interface{}
	if session.TaskID != nil {
		taskID = *session.TaskID
	}

	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO pomodoro_sessions (
			id, user_id, phase, cycle_index, duration_seconds, task_id,
			started_at, ended_at, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		string(session.Phase),
		session.CycleIndex,
		session.DurationSeconds,
		taskID,
		session.StartedAt.UTC().Format(time.RFC3339Nano),
		session.EndedAt.UTC().Format(time.RFC3339Nano),
		session.Status,
		session.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) List(ctx context.Context, userID string, limit int) ([]model.PomodoroSession, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, user_id, phase, cycle_index, duration_seconds, task_id,
		        started_at, ended_at, status, created_at
		 FROM pomodoro_sessions
		 WHERE user_id = ?
		 ORDER BY ended_at DESC
		 LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.PomodoroSession, 0, limit)
	for rows.Next() {
		session, scanErr := scanPomodoroSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPomodoroSession(s scanner) (*model.PomodoroSession, error) {
	session := model.PomodoroSession{}
	var phase string
	var taskID sql.NullInt64
	var startedAt, endedAt, createdAt string
	err := s.Scan(
		&session.ID,
		&session.UserID,
		&phase,
		&session.CycleIndex,
		&session.DurationSeconds,
		&taskID,
		&startedAt,
		&endedAt,
		&session.Status,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	session.Phase = cycle.Phase(phase)
	if taskID.Valid {
		value := taskID.Int64
		session.TaskID = &value
	}

	if session.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse session started_at: %w", err)
	}
	if session.EndedAt, err = parseTime(endedAt); err != nil {
		return nil, fmt.Errorf("parse session ended_at: %w", err)
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse session created_at: %w", err)
	}

	return &session, nil
}
