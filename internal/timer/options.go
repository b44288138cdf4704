package timer

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pomodoro/focusd/internal/cycle"
	"pomodoro/focusd/internal/model"
)

var (
	ErrPhaseNotInCycle = errors.New("phase does not occur in the cycle")
	ErrInvalidSettings = errors.New("invalid settings")
	ErrManagerClosed   = errors.New("timer manager closed")
)

// Ticker is the subset of time.Ticker the countdown needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct {
	*time.Ticker
}

func (t stdTicker) C() <-chan time.Time {
	return t.Ticker.C
}

func newStdTicker(d time.Duration) Ticker {
	return stdTicker{time.NewTicker(d)}
}

// ExpiryHandler is called, on its own goroutine, when a countdown reaches zero.
type ExpiryHandler func(owner string, state model.TimerState)

// Options contains runtime settings shared by every store.
type Options struct {
	TickInterval time.Duration
	NewTicker    func(time.Duration) Ticker
	Now          func() time.Time
	OnExpire     ExpiryHandler
	Logger       *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.NewTicker == nil {
		o.NewTicker = newStdTicker
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = &log.Logger
	}
	return o
}

// DurationFor converts the configured minutes of phase into seconds. A
// missing or non-positive setting yields 0.
func DurationFor(phase cycle.Phase, settings model.Settings) int {
	var minutes int
	switch phase {
	case cycle.Focus:
		minutes = settings.FocusMinutes
	case cycle.ShortBreak:
		minutes = settings.ShortBreakMinutes
	case cycle.LongBreak:
		minutes = settings.LongBreakMinutes
	}
	if minutes <= 0 {
		return 0
	}
	return minutes * 60
}

// ValidateSettings rejects settings that would produce zero-length phases.
func ValidateSettings(settings model.Settings) error {
	switch {
	case settings.FocusMinutes <= 0:
		return fmt.Errorf("%w: focus duration must be positive", ErrInvalidSettings)
	case settings.ShortBreakMinutes <= 0:
		return fmt.Errorf("%w: short break duration must be positive", ErrInvalidSettings)
	case settings.LongBreakMinutes <= 0:
		return fmt.Errorf("%w: long break duration must be positive", ErrInvalidSettings)
	}
	return nil
}
