package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pomodoro/focusd/internal/cycle"
	apperrors "pomodoro/focusd/internal/errors"
	"pomodoro/focusd/internal/model"
	"pomodoro/focusd/internal/repository"
	"pomodoro/focusd/internal/timer"
)

const expiryTimeout = 10 * time.Second

type PomodoroService struct {
	timers      *timer.Manager
	tasks       *repository.TaskRepository
	sessions    *repository.SessionRepository
	autoAdvance bool
	log         zerolog.Logger
}

type StateView struct {
	model.TimerState
	ServerTime time.Time `json:"serverTime"`
}

type CycleView struct {
	Phases []cycle.Phase `json:"phases"`
	Length int           `json:"length"`
}

// NewPomodoroService registers itself as the expiry handler of timers.
func NewPomodoroService(
	timers *timer.Manager,
	tasks *repository.TaskRepository,
	sessions *repository.SessionRepository,
	autoAdvance bool,
) *PomodoroService {
	s := &PomodoroService{
		timers:      timers,
		tasks:       tasks,
		sessions:    sessions,
		autoAdvance: autoAdvance,
		log:         log.With().Str("component", "pomodoro").Logger(),
	}
	timers.SetExpiryHandler(s.HandleExpired)
	return s
}

func (s *PomodoroService) GetState(ctx context.Context, userID string) (*StateView, *apperrors.APIError) {
	store, apiErr := s.store(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	return toStateView(store.Snapshot()), nil
}

// Start begins the countdown. A timer left expired at zero, for instance
// because the expiry handler has not advanced it yet, first moves to the
// next phase; AdvanceFrom makes sure only one of the two advances.
func (s *PomodoroService) Start(ctx context.Context, userID string) (*StateView, *apperrors.APIError) {
	store, apiErr := s.store(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}

	if _, _, err := store.AdvanceFrom(ctx, store.Snapshot().CycleIndex); err != nil {
		return nil, apperrors.FromTimer(err, "failed to advance phase")
	}

	state, err := store.Start(ctx)
	if err != nil {
		return nil, apperrors.FromTimer(err, "failed to start timer")
	}
	return toStateView(state), nil
}

func (s *PomodoroService) Stop(ctx context.Context, userID string) (*StateView, *apperrors.APIError) {
	store, apiErr := s.store(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	state, err := store.Stop(ctx)
	if err != nil {
		return nil, apperrors.FromTimer(err, "failed to stop timer")
	}
	return toStateView(state), nil
}

func (s *PomodoroService) SwitchPhase(ctx context.Context, userID, rawPhase string) (*StateView, *apperrors.APIError) {
	phase, err := cycle.ParsePhase(rawPhase)
	if err != nil {
		return nil, apperrors.BadRequest("invalid_phase", "phase must be one of focus, short_break, long_break")
	}

	store, apiErr := s.store(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	state, err := store.SwitchToPhase(ctx, phase)
	if err != nil {
		return nil, apperrors.FromTimer(err, "failed to switch phase")
	}
	return toStateView(state), nil
}

func (s *PomodoroService) Cycle() CycleView {
	table := s.timers.Table()
	return CycleView{
		Phases: table.Phases(),
		Length: table.Len(),
	}
}

// WatchState streams snapshots until ctx is done.
func (s *PomodoroService) WatchState(ctx context.Context, userID string) (<-chan model.TimerState, *apperrors.APIError) {
	store, apiErr := s.store(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	return store.Observe(ctx), nil
}

func (s *PomodoroService) GetSettings(ctx context.Context, userID string) (*model.Settings, *apperrors.APIError) {
	store, apiErr := s.store(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	settings, err := store.Settings(ctx)
	if err != nil {
		return nil, apperrors.FromTimer(err, "failed to load settings")
	}
	return &settings, nil
}

func (s *PomodoroService) UpdateSettings(ctx context.Context, userID string, input model.Settings) (*model.Settings, *apperrors.APIError) {
	store, apiErr := s.store(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	settings, err := store.SaveSettings(ctx, input)
	if err != nil {
		return nil, apperrors.FromTimer(err, "failed to save settings")
	}
	return &settings, nil
}

func (s *PomodoroService) WatchSettings(ctx context.Context, userID string) (<-chan model.Settings, *apperrors.APIError) {
	store, apiErr := s.store(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	return store.ObserveSettings(ctx), nil
}

func (s *PomodoroService) GetHistory(ctx context.Context, userID string, limit int) ([]model.PomodoroSession, *apperrors.APIError) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	sessions, err := s.sessions.List(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to get history")
	}
	return sessions, nil
}

// HandleExpired records the finished phase, credits the focused task for a
// focus phase and moves the owner's timer to the next phase of the cycle,
// starting it when auto-advance is enabled. A command that changed the
// timer after expiry wins: the advance is skipped.
func (s *PomodoroService) HandleExpired(owner string, expired model.TimerState) {
	ctx, cancel := context.WithTimeout(context.Background(), expiryTimeout)
	defer cancel()

	logger := s.log.With().Str("owner", owner).Str("phase", string(expired.Phase)).Logger()
	now := time.Now().UTC()

	session := model.PomodoroSession{
		ID:              uuid.NewString(),
		UserID:          owner,
		Phase:           expired.Phase,
		CycleIndex:      expired.CycleIndex,
		DurationSeconds: expired.ElapsedSeconds,
		EndedAt:         now,
		Status:          model.SessionCompleted,
		CreatedAt:       now,
	}
	if expired.StartedAt != nil {
		session.StartedAt = expired.StartedAt.UTC()
	} else {
		// Expired without counting in this process, e.g. resumed at zero:
		// assume the phase ran for its configured length.
		session.DurationSeconds = expired.TotalSeconds
		session.StartedAt = now.Add(-time.Duration(expired.TotalSeconds) * time.Second)
	}
	if expired.Phase == cycle.Focus && expired.HasFocusedTask() {
		taskID := expired.FocusedTaskID
		session.TaskID = &taskID
		err := s.tasks.IncrementSpent(ctx, owner, taskID, now)
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn().Int64("taskId", taskID).Msg("focused task no longer exists")
			session.TaskID = nil
		} else if err != nil {
			logger.Error().Err(err).Int64("taskId", taskID).Msg("credit focused task")
		}
	}
	if err := s.sessions.Insert(ctx, &session); err != nil {
		logger.Error().Err(err).Msg("record finished session")
	}

	store, err := s.timers.Store(ctx, owner)
	if err != nil {
		logger.Warn().Err(err).Msg("timer unavailable after expiry")
		return
	}

	state, advanced, err := store.AdvanceFrom(ctx, expired.CycleIndex)
	if err != nil {
		logger.Error().Err(err).Msg("advance to next phase")
		return
	}
	if !advanced {
		logger.Debug().Msg("timer changed after expiry, not advancing")
		return
	}
	if !s.autoAdvance {
		return
	}
	if _, err := store.Start(ctx); err != nil {
		logger.Error().Err(err).Str("next", string(state.Phase)).Msg("auto-start next phase")
	}
}

func (s *PomodoroService) store(ctx context.Context, userID string) (*timer.Store, *apperrors.APIError) {
	store, err := s.timers.Store(ctx, userID)
	if err != nil {
		return nil, apperrors.FromTimer(err, "failed to load timer")
	}
	return store, nil
}

func toStateView(state model.TimerState) *StateView {
	return &StateView{
		TimerState: state,
		ServerTime: time.Now().UTC(),
	}
}
