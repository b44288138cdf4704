package model

import "time"

type Task struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Spent       int       `json:"spent"`
	Target      int       `json:"target"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Done reports whether enough focus sessions were spent on the task.
func (t Task) Done() bool {
	return t.Completed || (t.Target > 0 && t.Spent >= t.Target)
}
