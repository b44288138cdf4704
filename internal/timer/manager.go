package timer

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"pomodoro/focusd/internal/cycle"
	"pomodoro/focusd/internal/model"
	"pomodoro/focusd/internal/preferences"
)

// Manager lazily opens one Store per owner and keeps it for the life of
// the process.
type Manager struct {
	table cycle.Table
	prefs preferences.Store
	opts  Options

	opening singleflight.Group

	mu       sync.Mutex
	stores   map[string]*Store
	onExpire ExpiryHandler
	closed   bool
}

func NewManager(table cycle.Table, prefs preferences.Store, opts Options) *Manager {
	m := &Manager{
		table:  table,
		prefs:  prefs,
		stores: make(map[string]*Store),
	}
	m.onExpire = opts.OnExpire
	opts.OnExpire = m.dispatchExpiry
	m.opts = opts.withDefaults()
	return m
}

func (m *Manager) Table() cycle.Table {
	return m.table
}

// SetExpiryHandler replaces the handler invoked when any owner's countdown
// reaches zero.
func (m *Manager) SetExpiryHandler(handler ExpiryHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = handler
}

func (m *Manager) dispatchExpiry(owner string, state model.TimerState) {
	m.mu.Lock()
	handler := m.onExpire
	m.mu.Unlock()
	if handler != nil {
		handler(owner, state)
	}
}

// Store returns the store of owner, opening it on first use. Opening loads
// from storage outside m.mu; concurrent first calls for the same owner share
// one Open.
func (m *Manager) Store(ctx context.Context, owner string) (*Store, error) {
	if store, ok, err := m.lookup(owner); ok || err != nil {
		return store, err
	}

	v, err, _ := m.opening.Do(owner, func() (interface{}, error) {
		if store, ok, err := m.lookup(owner); ok || err != nil {
			return store, err
		}
		store, err := Open(ctx, owner, m.table, m.prefs, m.opts)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			if err := store.Close(ctx); err != nil {
				m.opts.Logger.Error().Err(err).Str("owner", owner).Msg("close timer store")
			}
			return nil, ErrManagerClosed
		}
		m.stores[owner] = store
		return store, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

func (m *Manager) lookup(owner string) (*Store, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrManagerClosed
	}
	store, ok := m.stores[owner]
	return store, ok, nil
}

// Close stops every countdown, persisting live counters so they resume on
// the next start. The manager cannot be used afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	stores := make([]*Store, 0, len(m.stores))
	for _, store := range m.stores {
		stores = append(stores, store)
	}
	m.mu.Unlock()

	var errs []error
	for _, store := range stores {
		if err := store.Close(ctx); err != nil {
			m.opts.Logger.Error().Err(err).Str("owner", store.Owner()).Msg("close timer store")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
