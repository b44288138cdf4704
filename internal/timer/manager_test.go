package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pomodoro/focusd/internal/cycle"
	"pomodoro/focusd/internal/model"
	"pomodoro/focusd/internal/preferences"
)

type ManagerSuite struct {
	suite.Suite
	fixture *fixture
	manager *Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.fixture = newFixture()
	s.manager = NewManager(cycle.Default(), s.fixture.prefs, s.fixture.options())
}

func (s *ManagerSuite) TearDownTest() {
	_ = s.manager.Close(context.Background())
}

func (s *ManagerSuite) TestStoreIsSharedPerOwner() {
	ctx := context.Background()
	first, err := s.manager.Store(ctx, "alice")
	s.Require().NoError(err)
	again, err := s.manager.Store(ctx, "alice")
	s.Require().NoError(err)
	other, err := s.manager.Store(ctx, "bob")
	s.Require().NoError(err)

	s.Same(first, again)
	s.NotSame(first, other)
	s.Equal("bob", other.Owner())
}

func (s *ManagerSuite) TestOwnersAreIndependent() {
	ctx := context.Background()
	alice, err := s.manager.Store(ctx, "alice")
	s.Require().NoError(err)
	bob, err := s.manager.Store(ctx, "bob")
	s.Require().NoError(err)

	_, err = alice.SwitchToPhase(ctx, cycle.LongBreak)
	s.Require().NoError(err)

	s.Equal(cycle.LongBreak, alice.Snapshot().Phase)
	s.Equal(cycle.Focus, bob.Snapshot().Phase)
	_, ok := s.fixture.prefs.get("bob", preferences.KeyCycleIndex)
	s.False(ok)
}

func (s *ManagerSuite) TestExpiryHandlerReplaced() {
	ctx := context.Background()
	s.fixture.prefs.set("alice", map[string]string{preferences.KeyTimeRemaining: "1"})

	var (
		mu    sync.Mutex
		calls []string
	)
	s.manager.SetExpiryHandler(func(owner string, state model.TimerState) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, owner)
	})

	store, err := s.manager.Store(ctx, "alice")
	s.Require().NoError(err)
	_, err = store.Start(ctx)
	s.Require().NoError(err)
	s.fixture.clock.latest(s.T()).fire(s.T())

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 1
	}, time.Second, 5*time.Millisecond)
	s.Empty(s.fixture.expired, "original handler replaced")
}

func (s *ManagerSuite) TestCloseRejectsFurtherUse() {
	ctx := context.Background()
	s.Require().NoError(s.manager.Close(ctx))
	s.Require().NoError(s.manager.Close(ctx))

	_, err := s.manager.Store(ctx, "alice")
	s.ErrorIs(err, ErrManagerClosed)
}

func TestManagerClosePersistsLiveCounters(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.prefs.set("alice", map[string]string{preferences.KeyTimeRemaining: "30"})
	manager := NewManager(cycle.Default(), f.prefs, f.options())

	store, err := manager.Store(ctx, "alice")
	require.NoError(t, err)
	_, err = store.Start(ctx)
	require.NoError(t, err)
	ticker := f.clock.latest(t)
	ticker.fire(t)
	ticker.fire(t)
	require.Eventually(t, func() bool {
		return store.Snapshot().SecondsRemaining == 28
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, manager.Close(ctx))
	assert.True(t, ticker.isStopped())

	remaining, _ := f.prefs.get("alice", preferences.KeyTimeRemaining)
	running, _ := f.prefs.get("alice", preferences.KeyIsRunning)
	assert.Equal(t, "28", remaining)
	assert.Equal(t, "true", running)
}

func TestManagerCloseReportsStorageFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	manager := NewManager(cycle.Default(), f.prefs, f.options())

	store, err := manager.Store(ctx, "alice")
	require.NoError(t, err)
	_, err = store.Start(ctx)
	require.NoError(t, err)

	f.prefs.setFailWrites(true)
	err = manager.Close(ctx)
	assert.ErrorIs(t, err, preferences.ErrStorageUnavailable)
}

func TestManagerOpensOwnersIndependently(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	prefs := &slowLoadStore{memStore: f.prefs, slowOwner: "alice", release: make(chan struct{})}
	manager := NewManager(cycle.Default(), prefs, f.options())
	defer manager.Close(ctx)

	stores := make(chan *Store, 2)
	for i := 0; i < 2; i++ {
		go func() {
			store, err := manager.Store(ctx, "alice")
			assert.NoError(t, err)
			stores <- store
		}()
	}
	require.Eventually(t, func() bool {
		return prefs.loads.Load() == 1
	}, time.Second, 5*time.Millisecond)

	bob, err := manager.Store(ctx, "bob")
	require.NoError(t, err, "bob does not wait for alice's load")
	assert.Equal(t, "bob", bob.Owner())

	close(prefs.release)
	first, second := <-stores, <-stores
	require.NotNil(t, first)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), prefs.loads.Load())
}
