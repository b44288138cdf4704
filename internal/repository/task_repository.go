package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pomodoro/focusd/internal/model"
)

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, user_id, title, description, spent, target, completed, created_at, updated_at`

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	result, err := r.db.ExecContext(
		ctx,
		`INSERT INTO tasks (user_id, title, description, spent, target, completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.UserID,
		task.Title,
		task.Description,
		task.Spent,
		task.Target,
		task.Completed,
		task.CreatedAt.UTC().Format(time.RFC3339Nano),
		task.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("task id: %w", err)
	}
	task.ID = id
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, userID string, id int64) (*model.Task, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = ? AND id = ?`,
		userID,
		id,
	)
	return scanTask(row)
}

func (r *TaskRepository) List(ctx context.Context, userID string) ([]model.Task, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = ? ORDER BY completed ASC, created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		task, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) Delete(ctx context.Context, userID string, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return expectOneRow(result)
}

func (r *TaskRepository) MarkCompleted(ctx context.Context, userID string, id int64, now time.Time) error {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE tasks SET completed = 1, updated_at = ? WHERE user_id = ? AND id = ?`,
		now.UTC().Format(time.RFC3339Nano),
		userID,
		id,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return expectOneRow(result)
}

// IncrementSpent records one finished focus session against the task and
// marks it completed once the target is reached.
func (r *TaskRepository) IncrementSpent(ctx context.Context, userID string, id int64, now time.Time) error {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE tasks
		 SET spent = spent + 1,
		     completed = CASE WHEN spent + 1 >= target THEN 1 ELSE completed END,
		     updated_at = ?
		 WHERE user_id = ? AND id = ?`,
		now.UTC().Format(time.RFC3339Nano),
		userID,
		id,
	)
	if err != nil {
		return fmt.Errorf("increment task spent: %w", err)
	}
	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTask(s scanner) (*model.Task, error) {
	task := model.Task{}
	var createdAt, updatedAt string
	err := s.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&task.Spent,
		&task.Target,
		&task.Completed,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse task created_at: %w", err)
	}
	if task.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse task updated_at: %w", err)
	}
	return &task, nil
}
