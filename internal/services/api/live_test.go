package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/Puntos/internal/domain/kv"
	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
	"github.com/NordCoder/Puntos/internal/services/reminder"
)

func (e *testEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/v1/live/" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return e.hub.Connected(userID) }, time.Second, 10*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestHub_NotifyWithoutSession(t *testing.T) {
	hub := NewHub(nil, nil)
	err := hub.Notify(context.Background(), "u1", domain.Notification{Title: "x"})
	assert.ErrorIs(t, err, reminder.ErrNoLiveSession)

	_, err = hub.Prompt(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrNotUserInitiated)
}

func TestHub_NotifyReachesSession(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "u1")

	require.NoError(t, env.hub.Notify(context.Background(), "u1", domain.Notification{Title: "Hola", Link: "/p"}))
	f := readFrame(t, conn)
	assert.Equal(t, frameNotification, f.Type)
	require.NotNil(t, f.Notification)
	assert.Equal(t, "Hola", f.Notification.Title)
}

func TestRequestPermission_ThroughLiveSession(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/v1/reminders/u1/init", ana)
	conn := env.dial(t, "u1")

	go func() {
		f := frame{}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&f); err != nil || f.Type != framePermissionRequest {
			return
		}
		_ = conn.WriteJSON(frame{Type: framePermission, ID: f.ID, Permission: "granted"})
	}()

	resp := env.do(t, http.MethodPost, "/v1/reminders/u1/permission/request", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[grantedResponse](t, resp).Granted)

	sch, err := env.mgr.Lookup("u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateArmed, sch.State())
}

func TestHub_PromptTimesOut(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "u1")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := env.hub.Prompt(ctx, "u1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, framePermissionRequest, readFrame(t, conn).Type)
}

func TestHub_UnsolicitedPermissionFrame(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/v1/reminders/u1/init", ana)
	conn := env.dial(t, "u1")

	require.NoError(t, conn.WriteJSON(frame{Type: framePermission, Permission: "granted"}))

	sch, err := env.mgr.Lookup("u1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sch.State() == domain.StateArmed }, time.Second, 10*time.Millisecond)
}

func TestHub_PushFrameNeedsGrantedPermission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.Set(ctx, kv.TokenKey("u1"), "tok"))
	require.NoError(t, env.store.Set(ctx, kv.PermissionKey("u1"), string(domain.PermissionDenied)))
	resp := env.do(t, http.MethodPost, "/v1/reminders/u1/init", ana)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	conn := env.dial(t, "u1")

	require.NoError(t, conn.WriteJSON(frame{Type: framePush, Push: &domain.PushEvent{Title: "oculto"}}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var f frame
	assert.Error(t, conn.ReadJSON(&f), "denied user must not see a push")

	// a read deadline poisons the gorilla conn; reconnect to continue
	conn = env.dial(t, "u1")
	require.NoError(t, conn.WriteJSON(frame{Type: framePermission, Permission: "granted"}))
	sch, err := env.mgr.Lookup("u1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sch.Gate().State() == domain.PermissionGranted }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(frame{Type: framePush, Push: &domain.PushEvent{Title: "visible"}}))
	got := readFrame(t, conn)
	require.NotNil(t, got.Notification)
	assert.Equal(t, "visible", got.Notification.Title)
}

func TestHub_NewSessionReplacesOld(t *testing.T) {
	env := newTestEnv(t)
	first := env.dial(t, "u1")
	second := env.dial(t, "u1")

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)

	require.NoError(t, env.hub.Notify(context.Background(), "u1", domain.Notification{Title: "second"}))
	assert.Equal(t, "second", readFrame(t, second).Notification.Title)
}

func TestHub_SessionEndsOnClose(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "u1")
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !env.hub.Connected("u1") }, time.Second, 10*time.Millisecond)
}
