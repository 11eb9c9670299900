package reminder

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/Puntos/internal/domain/kv"
	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped int
}

func (t *fakeTimer) Stop() bool {
	t.stopped++
	return t.stopped == 1
}

type fakeTimers struct {
	mu  sync.Mutex
	all []*fakeTimer
}

func (ft *fakeTimers) New(d time.Duration, f func()) domain.Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	ft.all = append(ft.all, t)
	return t
}

func (ft *fakeTimers) count() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.all)
}

func (ft *fakeTimers) last() *fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.all) == 0 {
		return nil
	}
	return ft.all[len(ft.all)-1]
}

type memKV struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemKV() *memKV { return &memKV{m: map[string]string{}} }

func (s *memKV) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return "", kv.ErrNotFound
	}
	return v, nil
}

func (s *memKV) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *memKV) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}

func (s *memKV) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memKV) has(key string) bool {
	_, err := s.Get(context.Background(), key)
	return err == nil
}

type recStrategy struct {
	name string
	err  error
	hook func()

	mu    sync.Mutex
	calls []domain.Notification
}

func (r *recStrategy) Name() string { return r.name }

func (r *recStrategy) Deliver(_ context.Context, _ string, _ string, n domain.Notification) error {
	r.mu.Lock()
	r.calls = append(r.calls, n)
	r.mu.Unlock()
	if r.hook != nil {
		r.hook()
	}
	return r.err
}

func (r *recStrategy) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fakePush struct {
	validateErr  error
	subscribed   []string
	unsubscribed []string
}

func (p *fakePush) Validate(context.Context, string) error { return p.validateErr }

func (p *fakePush) Subscribe(_ context.Context, token string) error {
	p.subscribed = append(p.subscribed, token)
	return nil
}

func (p *fakePush) Unsubscribe(_ context.Context, token string) error {
	p.unsubscribed = append(p.unsubscribed, token)
	return nil
}

type recSink struct{ tokens []string }

func (s *recSink) SendTokenToServer(_ context.Context, _ string, token string) error {
	s.tokens = append(s.tokens, token)
	return nil
}

type harness struct {
	clock   *fakeClock
	timers  *fakeTimers
	store   *memKV
	display *recStrategy
	errs    []error
	deps    Deps
}

var madrid = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		panic(err)
	}
	return loc
}()

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:   &fakeClock{now: time.Date(2026, 10, 19, 16, 0, 0, 0, madrid)},
		timers:  &fakeTimers{},
		store:   newMemKV(),
		display: &recStrategy{name: "foreground"},
	}
	cfg, err := domain.NewConfig(17, 0, madrid)
	require.NoError(t, err)
	h.deps = Deps{
		Config:     cfg,
		Clock:      h.clock,
		NewTimer:   h.timers.New,
		Store:      h.store,
		Deliverer:  NewDeliverer(nil, h.display),
		Foreground: h.display,
		Caps:       domain.Capabilities{SupportsNotifications: true},
		Link:       "https://puntos.example/puntos",
		OnError:    func(_ string, err error) { h.errs = append(h.errs, err) },
	}
	return h
}

func (h *harness) grant(userID string) {
	_ = h.store.Set(context.Background(), kv.PermissionKey(userID), string(domain.PermissionGranted))
}

func (h *harness) scheduler(t *testing.T, userID string) *Scheduler {
	t.Helper()
	s, err := New(userID, h.deps)
	require.NoError(t, err)
	return s
}

// fireNext moves the clock to the armed target and runs the pending callback.
func (h *harness) fireNext(t *testing.T) {
	t.Helper()
	tm := h.timers.last()
	require.NotNil(t, tm, "no timer armed")
	h.clock.Set(h.clock.Now().Add(tm.d))
	tm.f()
}

func ctxFor(points string) *domain.UserContext {
	logo := "https://cdn.example/logo.png"
	return &domain.UserContext{
		DisplayName:     "Ana",
		Points:          decimal.RequireFromString(points),
		BusinessName:    "Cafe Sol",
		BusinessLogoURL: &logo,
	}
}

var errBoom = errors.New("boom")
