// Package timer owns the per-user Pomodoro timer state: the position in the
// cycle, the countdown, the focused task and the user's settings.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pomodoro/focusd/internal/cycle"
	"pomodoro/focusd/internal/model"
	"pomodoro/focusd/internal/preferences"
	"pomodoro/focusd/internal/watch"
)

// Store is the timer state of one owner.
//
// Commands (Start, Stop, SwitchToPhase, AdvanceFrom, SaveSettings,
// SetFocus) are serialized by cmdMu. Those that touch the countdown halt it
// and wait for its goroutine to exit before touching persisted state, so
// at most one countdown ever decrements the counter. mu guards the in-memory state and
// is shared with the countdown goroutine.
type Store struct {
	owner string
	table cycle.Table
	prefs preferences.Store
	opts  Options
	log   zerolog.Logger

	cmdMu sync.Mutex

	mu        sync.Mutex
	index     int
	remaining int
	running   bool
	focus     int64
	settings  model.Settings
	session   *countdown

	// phaseStarted and elapsed describe the current phase and reset on
	// every switch.
	phaseStarted time.Time
	elapsed      int

	snapshots *watch.Value[model.TimerState]
	settingsV *watch.Value[model.Settings]
	focusV    *watch.Value[int64]
}

// Open loads the persisted state of owner. A countdown that was running when
// the state was last persisted is resumed from the persisted remaining time.
func Open(ctx context.Context, owner string, table cycle.Table, prefs preferences.Store, opts Options) (*Store, error) {
	opts = opts.withDefaults()
	p, err := prefs.Load(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load timer state: %w", err)
	}

	s := &Store{
		owner: owner,
		table: table,
		prefs: prefs,
		opts:  opts,
		log:   opts.Logger.With().Str("owner", owner).Logger(),
	}

	s.settings = settingsFrom(p)
	s.index = table.Normalize(p.IntOr(preferences.KeyCycleIndex, 0))
	if remaining, ok := p.Int(preferences.KeyTimeRemaining); ok {
		s.remaining = max(remaining, 0)
	} else {
		s.remaining = DurationFor(table.PhaseAt(s.index), s.settings)
	}
	s.running = p.Bool(preferences.KeyIsRunning)
	s.focus = p.Int64Or(preferences.KeyFocusedTaskID, model.NoFocusedTask)

	s.mu.Lock()
	s.snapshots = watch.NewValue(s.snapshotLocked())
	s.settingsV = watch.NewValue(s.settings)
	s.focusV = watch.NewValue(s.focus)
	if s.running && s.remaining > 0 {
		s.launchLocked()
		s.log.Info().Int("remaining", s.remaining).Msg("resumed countdown")
	}
	s.publishLocked()
	s.mu.Unlock()

	return s, nil
}

func (s *Store) Owner() string {
	return s.owner
}

func (s *Store) Table() cycle.Table {
	return s.table
}

// Snapshot returns the current timer state including the live counter.
func (s *Store) Snapshot() model.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Observe streams snapshots: the current one first, then one per change,
// including every tick of a running countdown. The channel closes when ctx
// is done; calling Observe again starts a fresh stream.
func (s *Store) Observe(ctx context.Context) <-chan model.TimerState {
	return s.snapshots.Subscribe(ctx)
}

func (s *Store) ObserveSettings(ctx context.Context) <-chan model.Settings {
	return s.settingsV.Subscribe(ctx)
}

func (s *Store) ObserveFocus(ctx context.Context) <-chan int64 {
	return s.focusV.Subscribe(ctx)
}

// Start begins counting down from the persisted remaining time. Any
// countdown already in progress is cancelled first and its live counter,
// which may be ahead of storage, is written back; the running flag and the
// starting value are persisted and read in a single transaction before the
// new countdown is launched. When the counter is already zero the timer is
// marked running but stays expired until the phase is switched.
func (s *Store) Start(ctx context.Context) (model.TimerState, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	halted, wasActive := s.haltSession()
	live := s.liveRemaining()

	committed, err := s.prefs.Edit(ctx, s.owner, func(p preferences.Preferences) error {
		p.SetBool(preferences.KeyIsRunning, true)
		if halted || !p.Has(preferences.KeyTimeRemaining) {
			p.SetInt(preferences.KeyTimeRemaining, live)
		}
		return nil
	})
	if err != nil {
		s.restore(wasActive)
		return s.Snapshot(), fmt.Errorf("start timer: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.remaining = max(committed.IntOr(preferences.KeyTimeRemaining, live), 0)
	s.running = true
	s.launchLocked()
	s.log.Debug().Int("remaining", s.remaining).Int("cycleIndex", s.index).Msg("timer started")
	return s.publishLocked(), nil
}

// Stop cancels the countdown and persists the remaining time. Stopping an
// idle timer is a no-op apart from rewriting the same values.
func (s *Store) Stop(ctx context.Context) (model.TimerState, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	_, wasActive := s.haltSession()
	live := s.liveRemaining()

	_, err := s.prefs.Edit(ctx, s.owner, func(p preferences.Preferences) error {
		p.SetBool(preferences.KeyIsRunning, false)
		p.SetInt(preferences.KeyTimeRemaining, live)
		return nil
	})
	if err != nil {
		s.restore(wasActive)
		return s.Snapshot(), fmt.Errorf("stop timer: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.log.Debug().Int("remaining", s.remaining).Msg("timer stopped")
	return s.publishLocked(), nil
}

// SwitchToPhase moves to the nearest occurrence of phase after the current
// cycle index, wrapping around the table, and resets the remaining time to
// that phase's duration. The running flag is untouched: a countdown in
// progress continues from the new value. When phase does not occur in the
// table ErrPhaseNotInCycle is returned and nothing changes.
func (s *Store) SwitchToPhase(ctx context.Context, phase cycle.Phase) (model.TimerState, error) {
	if !s.table.Contains(phase) {
		return s.Snapshot(), fmt.Errorf("%w: %q", ErrPhaseNotInCycle, phase)
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return s.switchLocked(ctx, phase)
}

// AdvanceFrom moves an expired timer to the phase that follows index in the
// cycle. It only acts when the timer is still running, expired at zero and
// at index; otherwise it returns the current state and false. The check and
// the switch happen under the command lock, so concurrent callers reacting
// to the same expiry advance the cycle once.
func (s *Store) AdvanceFrom(ctx context.Context, index int) (model.TimerState, bool, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	current := s.Snapshot()
	if current.Status != model.StatusExpired || current.SecondsRemaining != 0 || current.CycleIndex != index {
		return current, false, nil
	}
	state, err := s.switchLocked(ctx, s.table.PhaseAt(index+1))
	if err != nil {
		return state, false, err
	}
	return state, true, nil
}

// switchLocked performs SwitchToPhase. The caller must hold s.cmdMu.
func (s *Store) switchLocked(ctx context.Context, phase cycle.Phase) (model.TimerState, error) {
	_, wasActive := s.haltSession()

	var index, seconds int
	committed, err := s.prefs.Edit(ctx, s.owner, func(p preferences.Preferences) error {
		current := s.table.Normalize(p.IntOr(preferences.KeyCycleIndex, 0))
		next, ok := s.table.NextIndexOf(current, phase)
		if !ok {
			return fmt.Errorf("%w: %q", ErrPhaseNotInCycle, phase)
		}
		index = next
		seconds = DurationFor(s.table.PhaseAt(next), settingsFrom(p))
		p.SetInt(preferences.KeyCycleIndex, index)
		p.SetInt(preferences.KeyTimeRemaining, seconds)
		return nil
	})
	if err != nil {
		s.restore(wasActive)
		return s.Snapshot(), fmt.Errorf("switch to %s: %w", phase, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = index
	s.remaining = seconds
	s.settings = settingsFrom(committed)
	s.phaseStarted = time.Time{}
	s.elapsed = 0
	if wasActive {
		s.launchLocked()
	}
	s.log.Debug().Str("phase", string(phase)).Int("cycleIndex", index).Int("remaining", seconds).Msg("phase switched")
	return s.publishLocked(), nil
}

// Settings reads the persisted settings, falling back to the defaults for
// values never saved.
func (s *Store) Settings(ctx context.Context) (model.Settings, error) {
	p, err := s.prefs.Load(ctx, s.owner)
	if err != nil {
		return model.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return settingsFrom(p), nil
}

// SaveSettings validates and persists settings. On failure the previous
// settings stay in effect. The remaining time of the current phase is not
// recomputed; the new durations apply from the next phase switch.
func (s *Store) SaveSettings(ctx context.Context, settings model.Settings) (model.Settings, error) {
	if err := ValidateSettings(settings); err != nil {
		return s.currentSettings(), err
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	_, err := s.prefs.Edit(ctx, s.owner, func(p preferences.Preferences) error {
		p.SetInt(preferences.KeyFocusDuration, settings.FocusMinutes)
		p.SetInt(preferences.KeyShortBreakDuration, settings.ShortBreakMinutes)
		p.SetInt(preferences.KeyLongBreakDuration, settings.LongBreakMinutes)
		p.SetString(preferences.KeyNotificationSound, settings.NotificationSound)
		return nil
	})
	if err != nil {
		return s.currentSettings(), fmt.Errorf("save settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.settingsV.Store(settings)
	s.publishLocked()
	return settings, nil
}

// Focus returns the focused task id or model.NoFocusedTask.
func (s *Store) Focus() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focus
}

// SetFocus records taskID as the focused task. The id is not validated here.
func (s *Store) SetFocus(ctx context.Context, taskID int64) (model.TimerState, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	_, err := s.prefs.Edit(ctx, s.owner, func(p preferences.Preferences) error {
		p.SetInt64(preferences.KeyFocusedTaskID, taskID)
		return nil
	})
	if err != nil {
		return s.Snapshot(), fmt.Errorf("set focus: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.focus = taskID
	s.focusV.Store(taskID)
	return s.publishLocked(), nil
}

func (s *Store) ClearFocus(ctx context.Context) (model.TimerState, error) {
	return s.SetFocus(ctx, model.NoFocusedTask)
}

// Close halts the countdown and persists the live counter without clearing
// the running flag, so the next Open resumes it.
func (s *Store) Close(ctx context.Context) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if halted, _ := s.haltSession(); !halted {
		return nil
	}
	live := s.liveRemaining()
	_, err := s.prefs.Edit(ctx, s.owner, func(p preferences.Preferences) error {
		p.SetInt(preferences.KeyTimeRemaining, live)
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist remaining time: %w", err)
	}
	return nil
}

func (s *Store) currentSettings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Store) liveRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// restore relaunches the countdown a failed command halted, so the failure
// leaves the observable state unchanged.
func (s *Store) restore(wasActive bool) {
	if !wasActive {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launchLocked()
}

func (s *Store) snapshotLocked() model.TimerState {
	phase := s.table.PhaseAt(s.index)
	status := model.StatusIdle
	if s.running {
		status = model.StatusExpired
		if s.session != nil && s.session.active {
			status = model.StatusCounting
		}
	}
	var startedAt *time.Time
	if !s.phaseStarted.IsZero() {
		started := s.phaseStarted
		startedAt = &started
	}
	return model.TimerState{
		CycleIndex:       s.index,
		Phase:            phase,
		SecondsRemaining: s.remaining,
		TotalSeconds:     DurationFor(phase, s.settings),
		IsRunning:        s.running,
		Status:           status,
		FocusedTaskID:    s.focus,
		StartedAt:        startedAt,
		ElapsedSeconds:   s.elapsed,
	}
}

func (s *Store) publishLocked() model.TimerState {
	state := s.snapshotLocked()
	s.snapshots.Store(state)
	return state
}

func settingsFrom(p preferences.Preferences) model.Settings {
	return model.Settings{
		FocusMinutes:      p.IntOr(preferences.KeyFocusDuration, model.DefaultFocusMinutes),
		ShortBreakMinutes: p.IntOr(preferences.KeyShortBreakDuration, model.DefaultShortBreakMinutes),
		LongBreakMinutes:  p.IntOr(preferences.KeyLongBreakDuration, model.DefaultLongBreakMinutes),
		NotificationSound: p.String(preferences.KeyNotificationSound, ""),
	}
}
