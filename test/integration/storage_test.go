//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/NordCoder/Puntos/internal/domain/kv"
	"github.com/NordCoder/Puntos/internal/domain/notification"
	pg "github.com/NordCoder/Puntos/internal/repository/postgres"
	redisrepo "github.com/NordCoder/Puntos/internal/repository/redis"
)

func exerciseKV(t *testing.T, s kv.Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user := RandUser()
	if _, err := s.Get(ctx, kv.TokenKey(user)); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("get missing: %v", err)
	}
	for _, k := range []string{kv.ContextKey(user), kv.LastDateKey(user), kv.TokenKey(user)} {
		if err := s.Set(ctx, k, "v-"+k); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	if err := s.Set(ctx, kv.TokenKey(user), "tok-2"); err != nil {
		t.Fatal(err)
	}
	if v, err := s.Get(ctx, kv.TokenKey(user)); err != nil || v != "tok-2" {
		t.Fatalf("last writer wins: %q %v", v, err)
	}

	keys, err := s.Keys(ctx, kv.ContextPrefix())
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, k := range keys {
		if id, ok := kv.UserFromContextKey(k); ok && id == user {
			found = true
		}
	}
	if !found {
		t.Fatalf("context key for %s not listed", user)
	}

	if err := s.Delete(ctx, kv.LastDateKey(user), kv.TokenKey(user)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, kv.LastDateKey(user)); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("deleted key still readable: %v", err)
	}
	_ = s.Delete(ctx, kv.ContextKey(user))
}

func TestPostgresKV(t *testing.T) {
	cfg := LoadCfg()
	db, err := pg.New(context.Background(), pg.Config{DSN: cfg.DBDSN, MaxConns: 4, QueryTimeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	exerciseKV(t, pg.NewKVRepo(db))
}

func TestRedisKV(t *testing.T) {
	cfg := LoadCfg()
	WaitTCP(t, "redis", cfg.RedisAddr, 30*time.Second)
	s, err := redisrepo.Open(context.Background(), redisrepo.Config{Addr: cfg.RedisAddr})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	exerciseKV(t, s)
}

func TestNotificationRepo(t *testing.T) {
	cfg := LoadCfg()
	ctx := context.Background()
	db, err := pg.New(ctx, pg.Config{DSN: cfg.DBDSN, MaxConns: 4, QueryTimeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	repo := pg.NewNotificationRepo(db)

	n := &notification.Notification{ID: uuid.New(), UserID: RandUser(), Title: "Hola", Channel: "inbox", CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, n); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, n); !errors.Is(err, notification.ErrDuplicate) {
		t.Fatalf("second create: %v", err)
	}
	list, err := repo.ListByUser(ctx, n.UserID, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v len=%d", err, len(list))
	}
	opened, err := repo.MarkOpened(ctx, n.ID)
	if err != nil || opened.OpenedAt == nil {
		t.Fatalf("mark opened: %v", err)
	}
	first := *opened.OpenedAt
	again, err := repo.MarkOpened(ctx, n.ID)
	if err != nil || !again.OpenedAt.Equal(first) {
		t.Fatalf("opened_at must be stamped once")
	}
	if _, err := repo.MarkOpened(ctx, uuid.New()); !errors.Is(err, notification.ErrNotFound) {
		t.Fatalf("unknown id: %v", err)
	}
}
