package timer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pomodoro/focusd/internal/model"
	"pomodoro/focusd/internal/preferences"
)

// memStore is an in-memory preferences.Store with failure injection.
type memStore struct {
	mu         sync.Mutex
	data       map[string]map[string]string
	failWrites bool
	failReads  bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]map[string]string)}
}

func (m *memStore) Load(_ context.Context, owner string) (preferences.Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return preferences.Preferences{}, fmt.Errorf("%w: disk unreadable", preferences.ErrStorageUnavailable)
	}
	return preferences.New(m.data[owner]), nil
}

func (m *memStore) Edit(_ context.Context, owner string, fn func(preferences.Preferences) error) (preferences.Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := preferences.New(m.data[owner])
	if err := fn(p); err != nil {
		return preferences.Preferences{}, err
	}
	if m.failWrites {
		return preferences.Preferences{}, fmt.Errorf("%w: disk full", preferences.ErrStorageUnavailable)
	}
	if m.data[owner] == nil {
		m.data[owner] = make(map[string]string)
	}
	for k, v := range p.Changed() {
		m.data[owner][k] = v
	}
	return preferences.New(m.data[owner]), nil
}

func (m *memStore) set(owner string, values map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[owner] == nil {
		m.data[owner] = make(map[string]string)
	}
	for k, v := range values {
		m.data[owner][k] = v
	}
}

func (m *memStore) get(owner, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[owner][key]
	return v, ok
}

func (m *memStore) setFailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

// stallingStore parks the next Edit until its context is cancelled or
// resume is called.
type stallingStore struct {
	*memStore
	stall   atomic.Bool
	stalled chan struct{}
	release chan struct{}
}

func newStallingStore(m *memStore) *stallingStore {
	return &stallingStore{
		memStore: m,
		stalled:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
}

func (s *stallingStore) Edit(ctx context.Context, owner string, fn func(preferences.Preferences) error) (preferences.Preferences, error) {
	if s.stall.CompareAndSwap(true, false) {
		s.stalled <- struct{}{}
		select {
		case <-ctx.Done():
			return preferences.Preferences{}, ctx.Err()
		case <-s.release:
		}
	}
	return s.memStore.Edit(ctx, owner, fn)
}

func (s *stallingStore) resume() {
	close(s.release)
}

func (s *stallingStore) waitStalled(t *testing.T) {
	t.Helper()
	select {
	case <-s.stalled:
	case <-time.After(time.Second):
		t.Fatal("no edit stalled")
	}
}

// slowLoadStore blocks Load for one owner until release is closed.
type slowLoadStore struct {
	*memStore
	slowOwner string
	release   chan struct{}
	loads     atomic.Int32
}

func (s *slowLoadStore) Load(ctx context.Context, owner string) (preferences.Preferences, error) {
	if owner == s.slowOwner {
		s.loads.Add(1)
		<-s.release
	}
	return s.memStore.Load(ctx, owner)
}

// fakeClock hands out manually driven tickers.
type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

func (c *fakeClock) latest(t *testing.T) *fakeTicker {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.tickers, "no ticker created")
	return c.tickers[len(c.tickers)-1]
}

func (c *fakeClock) at(i int) *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickers[i]
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.ch
}

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// fire delivers one tick and fails if no countdown consumes it.
func (t *fakeTicker) fire(tb testing.TB) {
	tb.Helper()
	select {
	case t.ch <- time.Now():
	case <-time.After(time.Second):
		tb.Fatal("tick was not consumed")
	}
}

// consumed reports whether a countdown is still reading from this ticker.
func (t *fakeTicker) consumed(wait time.Duration) bool {
	select {
	case t.ch <- time.Now():
		return true
	case <-time.After(wait):
		return false
	}
}

type fixture struct {
	prefs   *memStore
	clock   *fakeClock
	expired chan model.TimerState
}

func newFixture() *fixture {
	return &fixture{
		prefs:   newMemStore(),
		clock:   &fakeClock{},
		expired: make(chan model.TimerState, 4),
	}
}

func (f *fixture) options() Options {
	logger := zerolog.Nop()
	return Options{
		NewTicker: f.clock.NewTicker,
		OnExpire: func(_ string, state model.TimerState) {
			f.expired <- state
		},
		Logger: &logger,
	}
}

func waitFor(t *testing.T, ch <-chan model.TimerState, match func(model.TimerState) bool) model.TimerState {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case state, ok := <-ch:
			require.True(t, ok, "snapshot stream closed")
			if match(state) {
				return state
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
			return model.TimerState{}
		}
	}
}
