package timer

import (
	"context"

	"pomodoro/focusd/internal/model"
	"pomodoro/focusd/internal/preferences"
)

// countdown is one running session of the ticking loop.
type countdown struct {
	cancel context.CancelFunc
	done   chan struct{}
	// active is guarded by Store.mu and cleared when the loop stops
	// decrementing, whether it expired or was cancelled.
	active bool
}

// launchLocked starts a countdown from s.remaining. It does nothing when
// the counter is already zero. The caller must hold s.mu and must have
// halted any previous session.
func (s *Store) launchLocked() {
	if s.remaining <= 0 {
		return
	}
	if s.phaseStarted.IsZero() {
		s.phaseStarted = s.opts.Now()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cd := &countdown{
		cancel: cancel,
		done:   make(chan struct{}),
		active: true,
	}
	s.session = cd
	ticker := s.opts.NewTicker(s.opts.TickInterval)
	go s.run(ctx, cd, ticker)
}

// haltSession cancels the current countdown and blocks until its goroutine
// has returned. halted reports whether there was a session at all, in which
// case the in-memory counter is newer than the persisted one; wasActive
// reports whether it was still decrementing.
func (s *Store) haltSession() (halted, wasActive bool) {
	s.mu.Lock()
	cd := s.session
	s.session = nil
	wasActive = cd != nil && cd.active
	s.mu.Unlock()

	if cd == nil {
		return false, false
	}
	cd.cancel()
	<-cd.done
	return true, wasActive
}

func (s *Store) run(ctx context.Context, cd *countdown, ticker Ticker) {
	defer close(cd.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.deactivate(cd)
			return
		case <-ticker.C():
		}
		if ctx.Err() != nil {
			s.deactivate(cd)
			return
		}

		state, expired := s.tick(cd)
		if expired {
			s.expire(ctx, state)
			return
		}
	}
}

// tick decrements the counter by one second and publishes the result.
func (s *Store) tick(cd *countdown) (model.TimerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != cd {
		cd.active = false
		return model.TimerState{}, false
	}
	if s.remaining > 0 {
		s.remaining--
		s.elapsed++
	}
	expired := s.remaining == 0
	if expired {
		cd.active = false
	}
	return s.publishLocked(), expired
}

func (s *Store) deactivate(cd *countdown) {
	s.mu.Lock()
	cd.active = false
	s.mu.Unlock()
}

func (s *Store) expire(ctx context.Context, state model.TimerState) {
	s.log.Info().
		Str("phase", string(state.Phase)).
		Int("cycleIndex", state.CycleIndex).
		Msg("countdown expired")

	_, err := s.prefs.Edit(ctx, s.owner, func(p preferences.Preferences) error {
		p.SetInt(preferences.KeyTimeRemaining, 0)
		return nil
	})
	if err != nil {
		// Also hit when a command halts the session mid-write; that
		// command persists the live counter after this goroutine exits.
		s.log.Warn().Err(err).Msg("persist expired countdown")
	}

	if s.opts.OnExpire != nil {
		go s.opts.OnExpire(s.owner, state)
	}
}
