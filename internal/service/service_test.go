package service_test

import (
	"context"
	"database/sql"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pomodoro/focusd/internal/cycle"
	"pomodoro/focusd/internal/db"
	"pomodoro/focusd/internal/model"
	"pomodoro/focusd/internal/preferences"
	"pomodoro/focusd/internal/repository"
	"pomodoro/focusd/internal/service"
	"pomodoro/focusd/internal/timer"
	"pomodoro/focusd/migrations"
)

type env struct {
	db       *sql.DB
	prefs    *repository.PreferenceRepository
	tasks    *repository.TaskRepository
	timers   *timer.Manager
	pomodoro *service.PomodoroService
	taskSvc  *service.TaskService
	userID   string
}

func newEnv(t *testing.T, tick time.Duration, autoAdvance bool) *env {
	t.Helper()
	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(database, migrations.Files))

	logger := zerolog.Nop()
	prefs := repository.NewPreferenceRepository(database)
	tasks := repository.NewTaskRepository(database)
	timers := timer.NewManager(cycle.Default(), prefs, timer.Options{TickInterval: tick, Logger: &logger})
	t.Cleanup(func() {
		_ = timers.Close(context.Background())
		_ = database.Close()
	})

	e := &env{
		db:       database,
		prefs:    prefs,
		tasks:    tasks,
		timers:   timers,
		pomodoro: service.NewPomodoroService(timers, tasks, repository.NewSessionRepository(database), autoAdvance),
		taskSvc:  service.NewTaskService(tasks, timers),
		userID:   "user-1",
	}

	now := time.Now().UTC()
	require.NoError(t, repository.NewUserRepository(database).Create(context.Background(), &model.User{
		ID:           e.userID,
		Email:        "user-1@example.com",
		PasswordHash: "x",
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
	return e
}

func (e *env) seed(t *testing.T, values map[string]int) {
	t.Helper()
	_, err := e.prefs.Edit(context.Background(), e.userID, func(p preferences.Preferences) error {
		for k, v := range values {
			p.SetInt(k, v)
		}
		return nil
	})
	require.NoError(t, err)
}

// expireNow opens the timer at zero and starts it, which leaves it expired
// without a running countdown.
func (e *env) expireNow(t *testing.T) model.TimerState {
	t.Helper()
	e.seed(t, map[string]int{preferences.KeyTimeRemaining: 0})
	store, err := e.timers.Store(context.Background(), e.userID)
	require.NoError(t, err)
	state, err := store.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.StatusExpired, state.Status)
	return state
}

func TestGetStateDefaults(t *testing.T) {
	e := newEnv(t, time.Hour, false)

	view, apiErr := e.pomodoro.GetState(context.Background(), e.userID)
	require.Nil(t, apiErr)
	assert.Equal(t, cycle.Focus, view.Phase)
	assert.Equal(t, 1500, view.SecondsRemaining)
	assert.Equal(t, model.StatusIdle, view.Status)
	assert.False(t, view.ServerTime.IsZero())
}

func TestSwitchPhaseErrors(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour, false)

	_, apiErr := e.pomodoro.SwitchPhase(ctx, e.userID, "nap")
	require.NotNil(t, apiErr)
	assert.Equal(t, "invalid_phase", apiErr.Code)

	view, apiErr := e.pomodoro.SwitchPhase(ctx, e.userID, "long")
	require.Nil(t, apiErr)
	assert.Equal(t, 8, view.CycleIndex)
	assert.Equal(t, 900, view.SecondsRemaining)
}

func TestSwitchPhaseNotInCycle(t *testing.T) {
	ctx := context.Background()
	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "short.db"))
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, db.RunMigrations(database, migrations.Files))

	table, err := cycle.New(cycle.Focus, cycle.ShortBreak)
	require.NoError(t, err)
	timers := timer.NewManager(table, repository.NewPreferenceRepository(database), timer.Options{TickInterval: time.Hour})
	defer timers.Close(ctx)
	svc := service.NewPomodoroService(timers, repository.NewTaskRepository(database), repository.NewSessionRepository(database), false)

	_, apiErr := svc.SwitchPhase(ctx, "someone", "long_break")
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "phase_not_in_cycle", apiErr.Code)
	assert.Equal(t, []cycle.Phase{cycle.Focus, cycle.ShortBreak}, svc.Cycle().Phases)
}

func TestUpdateSettingsValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour, false)

	_, apiErr := e.pomodoro.UpdateSettings(ctx, e.userID, model.Settings{FocusMinutes: 0, ShortBreakMinutes: 5, LongBreakMinutes: 15})
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	want := model.Settings{FocusMinutes: 40, ShortBreakMinutes: 8, LongBreakMinutes: 20, NotificationSound: "chime"}
	saved, apiErr := e.pomodoro.UpdateSettings(ctx, e.userID, want)
	require.Nil(t, apiErr)
	assert.Equal(t, want, *saved)

	got, apiErr := e.pomodoro.GetSettings(ctx, e.userID)
	require.Nil(t, apiErr)
	assert.Equal(t, want, *got)
}

func TestHandleExpiredRecordsAndAdvances(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour, false)

	task, apiErr := e.taskSvc.Create(ctx, e.userID, service.CreateTaskInput{Title: "write report", Target: 2})
	require.Nil(t, apiErr)
	_, apiErr = e.taskSvc.SetFocus(ctx, e.userID, task.ID)
	require.Nil(t, apiErr)

	expired := e.expireNow(t)
	e.pomodoro.HandleExpired(e.userID, expired)

	history, apiErr := e.pomodoro.GetHistory(ctx, e.userID, 10)
	require.Nil(t, apiErr)
	require.Len(t, history, 1)
	assert.Equal(t, cycle.Focus, history[0].Phase)
	assert.Equal(t, model.SessionCompleted, history[0].Status)
	require.NotNil(t, history[0].TaskID)
	assert.Equal(t, task.ID, *history[0].TaskID)

	credited, err := e.tasks.Get(ctx, e.userID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, credited.Spent)
	assert.False(t, credited.Completed)

	view, apiErr := e.pomodoro.GetState(ctx, e.userID)
	require.Nil(t, apiErr)
	assert.Equal(t, 1, view.CycleIndex)
	assert.Equal(t, cycle.ShortBreak, view.Phase)
	assert.Equal(t, 300, view.SecondsRemaining)
	assert.Equal(t, model.StatusExpired, view.Status)

	started, apiErr := e.pomodoro.Start(ctx, e.userID)
	require.Nil(t, apiErr)
	assert.Equal(t, model.StatusCounting, started.Status)
	assert.Equal(t, 1, started.CycleIndex)
}

func TestHandleExpiredAutoAdvanceStartsNextPhase(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour, true)

	expired := e.expireNow(t)
	e.pomodoro.HandleExpired(e.userID, expired)

	view, apiErr := e.pomodoro.GetState(ctx, e.userID)
	require.Nil(t, apiErr)
	assert.Equal(t, cycle.ShortBreak, view.Phase)
	assert.Equal(t, model.StatusCounting, view.Status)
}

func TestHandleExpiredSkipsWhenTimerChanged(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour, false)

	expired := e.expireNow(t)
	_, apiErr := e.pomodoro.Stop(ctx, e.userID)
	require.Nil(t, apiErr)

	e.pomodoro.HandleExpired(e.userID, expired)

	view, apiErr := e.pomodoro.GetState(ctx, e.userID)
	require.Nil(t, apiErr)
	assert.Equal(t, 0, view.CycleIndex)
	assert.Equal(t, model.StatusIdle, view.Status)
}

func TestStartAdvancesExpiredTimer(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour, false)
	e.expireNow(t)

	view, apiErr := e.pomodoro.Start(ctx, e.userID)
	require.Nil(t, apiErr)
	assert.Equal(t, 1, view.CycleIndex)
	assert.Equal(t, 300, view.SecondsRemaining)
	assert.Equal(t, model.StatusCounting, view.Status)
}

func TestCountdownExpiryIsRecorded(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 5*time.Millisecond, false)
	e.seed(t, map[string]int{preferences.KeyTimeRemaining: 2})

	_, apiErr := e.pomodoro.Start(ctx, e.userID)
	require.Nil(t, apiErr)

	require.Eventually(t, func() bool {
		view, apiErr := e.pomodoro.GetState(ctx, e.userID)
		return apiErr == nil && view.Phase == cycle.ShortBreak
	}, 2*time.Second, 10*time.Millisecond)

	history, apiErr := e.pomodoro.GetHistory(ctx, e.userID, 0)
	require.Nil(t, apiErr)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].TaskID)
	assert.Equal(t, 2, history[0].DurationSeconds, "seconds actually counted")
	assert.False(t, history[0].StartedAt.After(history[0].EndedAt))
	assert.Less(t, history[0].EndedAt.Sub(history[0].StartedAt), time.Minute)
}

func TestStartRacingExpiryAdvancesOnce(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		e := newEnv(t, time.Hour, false)
		expired := e.expireNow(t)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.pomodoro.HandleExpired(e.userID, expired)
		}()
		go func() {
			defer wg.Done()
			_, apiErr := e.pomodoro.Start(ctx, e.userID)
			assert.Nil(t, apiErr)
		}()
		wg.Wait()

		view, apiErr := e.pomodoro.GetState(ctx, e.userID)
		require.Nil(t, apiErr)
		require.Equal(t, 1, view.CycleIndex, "run %d", i)
		assert.Equal(t, cycle.ShortBreak, view.Phase)
		assert.Equal(t, model.StatusCounting, view.Status)
	}
}

func TestFocusRequiresOwnedTask(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour, false)

	_, apiErr := e.taskSvc.SetFocus(ctx, e.userID, 999)
	require.NotNil(t, apiErr)
	assert.Equal(t, "task_not_found", apiErr.Code)

	focus, apiErr := e.taskSvc.GetFocus(ctx, e.userID)
	require.Nil(t, apiErr)
	assert.Equal(t, model.NoFocusedTask, focus.TaskID)
	assert.Nil(t, focus.Task)
}

func TestDeletingFocusedTaskClearsFocus(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour, false)

	task, apiErr := e.taskSvc.Create(ctx, e.userID, service.CreateTaskInput{Title: "inbox zero"})
	require.Nil(t, apiErr)
	assert.Equal(t, 1, task.Target)

	focus, apiErr := e.taskSvc.SetFocus(ctx, e.userID, task.ID)
	require.Nil(t, apiErr)
	assert.Equal(t, task.ID, focus.TaskID)
	assert.Equal(t, "inbox zero", focus.Task.Title)

	require.Nil(t, e.taskSvc.Delete(ctx, e.userID, task.ID))

	focus, apiErr = e.taskSvc.GetFocus(ctx, e.userID)
	require.Nil(t, apiErr)
	assert.Equal(t, model.NoFocusedTask, focus.TaskID)

	apiErr = e.taskSvc.Delete(ctx, e.userID, task.ID)
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestCreateTaskValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour, false)

	_, apiErr := e.taskSvc.Create(ctx, e.userID, service.CreateTaskInput{Title: "   "})
	require.NotNil(t, apiErr)
	assert.Equal(t, "invalid_title", apiErr.Code)

	_, apiErr = e.taskSvc.Create(ctx, e.userID, service.CreateTaskInput{Title: "x", Target: -2})
	require.NotNil(t, apiErr)
	assert.Equal(t, "invalid_target", apiErr.Code)

	done, apiErr := e.taskSvc.Create(ctx, e.userID, service.CreateTaskInput{Title: "ship"})
	require.Nil(t, apiErr)
	completed, apiErr := e.taskSvc.Complete(ctx, e.userID, done.ID)
	require.Nil(t, apiErr)
	assert.True(t, completed.Completed)

	tasks, apiErr := e.taskSvc.List(ctx, e.userID)
	require.Nil(t, apiErr)
	assert.Len(t, tasks, 1)
}
