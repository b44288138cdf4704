// Package preferences models the per-owner key-value store that holds
// timer settings and runtime state.
package preferences

import (
	"context"
	"errors"
	"strconv"
)

// ErrStorageUnavailable wraps every failure of the underlying store. Callers
// may retry; nothing was written when it is returned.
var ErrStorageUnavailable = errors.New("preference storage unavailable")

// Settings keys, durations in minutes.
const (
	KeyFocusDuration      = "pomodoro_duration"
	KeyShortBreakDuration = "break_time"
	KeyLongBreakDuration  = "long_break_time"
	KeyNotificationSound  = "notification_sound"
)

// Runtime keys.
const (
	KeyCycleIndex    = "cycle_index"
	KeyTimeRemaining = "time_remaining"
	KeyIsRunning     = "is_running"
	KeyFocusedTaskID = "focused_task_id"
)

// Store is a transactional key-value store partitioned by owner.
type Store interface {
	Load(ctx context.Context, owner string) (Preferences, error)
	// Edit runs fn inside a single transaction. fn mutates the given
	// Preferences; when it returns an error nothing is persisted. The
	// returned Preferences reflect the committed state.
	Edit(ctx context.Context, owner string, fn func(p Preferences) error) (Preferences, error)
}

// Preferences is a typed view over raw string values.
type Preferences struct {
	values  map[string]string
	changed map[string]struct{}
}

func New(values map[string]string) Preferences {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return Preferences{values: copied, changed: make(map[string]struct{})}
}

func (p Preferences) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

func (p Preferences) String(key, fallback string) string {
	if v, ok := p.values[key]; ok {
		return v
	}
	return fallback
}

// Int returns the stored integer, or ok=false when the key is missing or
// does not parse.
func (p Preferences) Int(key string) (int, bool) {
	raw, ok := p.values[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (p Preferences) IntOr(key string, fallback int) int {
	if v, ok := p.Int(key); ok {
		return v
	}
	return fallback
}

func (p Preferences) Int64Or(key string, fallback int64) int64 {
	raw, ok := p.values[key]
	if !ok {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func (p Preferences) Bool(key string) bool {
	v, err := strconv.ParseBool(p.values[key])
	return err == nil && v
}

func (p Preferences) SetString(key, value string) {
	p.values[key] = value
	p.changed[key] = struct{}{}
}

func (p Preferences) SetInt(key string, value int) {
	p.SetString(key, strconv.Itoa(value))
}

func (p Preferences) SetInt64(key string, value int64) {
	p.SetString(key, strconv.FormatInt(value, 10))
}

func (p Preferences) SetBool(key string, value bool) {
	p.SetString(key, strconv.FormatBool(value))
}

// Changed lists keys written since New, with their new values.
func (p Preferences) Changed() map[string]string {
	out := make(map[string]string, len(p.changed))
	for k := range p.changed {
		out[k] = p.values[k]
	}
	return out
}

// Values returns a copy of all stored values.
func (p Preferences) Values() map[string]string {
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}
