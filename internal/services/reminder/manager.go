package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/NordCoder/Puntos/internal/domain/kv"
	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
)

var activeSchedulers = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "reminder_active_schedulers",
	Help: "Schedulers currently registered.",
})

var ErrUnknownUser = errors.New("no scheduler for user")

// Factory builds a fresh, uninitialized scheduler for userID.
type Factory func(userID string) (*Scheduler, error)

// NewFactory gives every scheduler its own gate and shares the rest of tmpl.
func NewFactory(tmpl Deps, prompter Prompter, promptTimeout time.Duration) Factory {
	return func(userID string) (*Scheduler, error) {
		d := tmpl
		d.Gate = NewGate(userID, tmpl.Caps, prompter, promptTimeout, tmpl.Log)
		return New(userID, d)
	}
}

// Manager keeps at most one scheduler per user.
type Manager struct {
	store   kv.Store
	factory Factory
	log     *zap.Logger

	mu         sync.Mutex
	schedulers map[string]*Scheduler
}

func NewManager(store kv.Store, factory Factory, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		store:      store,
		factory:    factory,
		log:        log.With(zap.String("component", "reminder.manager")),
		schedulers: make(map[string]*Scheduler),
	}
}

func (m *Manager) Get(userID string) (*Scheduler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedulers[userID]
	return s, ok
}

// Lookup is Get with ErrUnknownUser for a missing scheduler.
func (m *Manager) Lookup(userID string) (*Scheduler, error) {
	if s, ok := m.Get(userID); ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
}

func (m *Manager) ensure(userID string) (*Scheduler, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.schedulers[userID]; ok {
		return s, nil
	}
	s, err := m.factory(userID)
	if err != nil {
		return nil, err
	}
	m.schedulers[userID] = s
	activeSchedulers.Set(float64(len(m.schedulers)))
	return s, nil
}

// Init creates the user's scheduler if needed and initializes it.
func (m *Manager) Init(ctx context.Context, userID string, uc *domain.UserContext) (*Scheduler, error) {
	s, err := m.ensure(userID)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx, uc); err != nil {
		if s.State() == domain.StateUninitialized {
			m.drop(userID, s)
		}
		return nil, err
	}
	return s, nil
}

func (m *Manager) drop(userID string, s *Scheduler) {
	m.mu.Lock()
	if cur, ok := m.schedulers[userID]; ok && cur == s {
		delete(m.schedulers, userID)
		activeSchedulers.Set(float64(len(m.schedulers)))
	}
	m.mu.Unlock()
	s.Destroy()
}

// Destroy tears down the user's scheduler. It reports whether one existed.
func (m *Manager) Destroy(userID string) bool {
	s, ok := m.Get(userID)
	if !ok {
		return false
	}
	m.drop(userID, s)
	return true
}

// Restore rebuilds a scheduler for every persisted user context.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	keys, err := m.store.Keys(ctx, kv.ContextPrefix())
	if err != nil {
		return 0, fmt.Errorf("list contexts: %w", err)
	}
	restored := 0
	for _, k := range keys {
		userID, ok := kv.UserFromContextKey(k)
		if !ok {
			continue
		}
		if _, err := m.Init(ctx, userID, nil); err != nil {
			m.log.Warn("restore scheduler failed", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		restored++
	}
	m.log.Info("schedulers restored", zap.Int("count", restored))
	return restored, nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.schedulers)
}

// Shutdown destroys every scheduler.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := m.schedulers
	m.schedulers = make(map[string]*Scheduler)
	activeSchedulers.Set(0)
	m.mu.Unlock()
	for _, s := range all {
		s.Destroy()
	}
}
