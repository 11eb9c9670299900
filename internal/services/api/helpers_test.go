package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/Puntos/internal/domain/kv"
	"github.com/NordCoder/Puntos/internal/domain/notification"
	"github.com/NordCoder/Puntos/internal/domain/promo"
	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
	"github.com/NordCoder/Puntos/internal/services/reminder"
)

type memKV struct {
	mu sync.Mutex
	m  map[string]string
}

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

type fakeDirectory struct {
	clients   []promo.Client
	campaigns []promo.Campaign
	err       error
}

func (d *fakeDirectory) ListClients(context.Context) ([]promo.Client, error) {
	return d.clients, d.err
}

func (d *fakeDirectory) ListCampaigns(context.Context) ([]promo.Campaign, error) {
	return d.campaigns, d.err
}

type fakeLedger struct {
	statementFor string
	purchases    []json.RawMessage
	campaigns    []json.RawMessage
	reply        json.RawMessage
	err          error
}

func (l *fakeLedger) Statement(_ context.Context, clientID string) (json.RawMessage, error) {
	l.statementFor = clientID
	return l.reply, l.err
}

func (l *fakeLedger) RegisterPurchase(_ context.Context, body json.RawMessage) (json.RawMessage, error) {
	l.purchases = append(l.purchases, body)
	return l.reply, l.err
}

func (l *fakeLedger) SaveCampaign(_ context.Context, body json.RawMessage) (json.RawMessage, error) {
	l.campaigns = append(l.campaigns, body)
	return l.reply, l.err
}

type memInbox struct {
	mu   sync.Mutex
	list []*notification.Notification
}

func (r *memInbox) Create(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	r.list = append(r.list, n)
	return nil
}

func (r *memInbox) ListByUser(_ context.Context, userID string, limit int) ([]*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*notification.Notification
	for _, n := range r.list {
		if n.UserID == userID && len(out) < limit {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memInbox) MarkOpened(_ context.Context, id uuid.UUID) (*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.list {
		if n.ID == id {
			if n.OpenedAt == nil {
				now := time.Now()
				n.OpenedAt = &now
			}
			return n, nil
		}
	}
	return nil, notification.ErrNotFound
}

type testEnv struct {
	srv    *httptest.Server
	api    *Server
	hub    *Hub
	mgr    *reminder.Manager
	store  *memKV
	dir    *fakeDirectory
	ledger *fakeLedger
	inbox  *memInbox
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  &memKV{m: map[string]string{}},
		dir:    &fakeDirectory{},
		ledger: &fakeLedger{},
		inbox:  &memInbox{},
	}
	env.hub = NewHub(nil, nil)

	cfg, err := domain.NewConfig(10, 0, time.UTC)
	require.NoError(t, err)
	caps := domain.Capabilities{SupportsNotifications: true}
	tmpl := reminder.Deps{
		Config:     cfg,
		Store:      env.store,
		Deliverer:  reminder.NewDeliverer(nil, reminder.ForegroundStrategy{Sessions: env.hub}),
		Foreground: reminder.ForegroundStrategy{Sessions: env.hub},
		Caps:       caps,
		Link:       "https://puntos.test/points",
	}
	env.mgr = reminder.NewManager(env.store, reminder.NewFactory(tmpl, env.hub, 2*time.Second), nil)
	t.Cleanup(env.mgr.Shutdown)

	env.api = NewServer(Deps{
		Manager:    env.mgr,
		Inbox:      env.inbox,
		Directory:  env.dir,
		Ledger:     env.ledger,
		Hub:        env.hub,
		PointsLink: "https://puntos.test/points",
	})
	mux := runtime.NewServeMux()
	require.NoError(t, env.api.Register(mux))
	env.srv = httptest.NewServer(mux)
	t.Cleanup(env.srv.Close)
	return env
}
