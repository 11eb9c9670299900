package reminder

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/Puntos/internal/domain/kv"
	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
)

func TestInit_ArmsWhenGranted(t *testing.T) {
	h := newHarness(t)
	h.grant("u1")
	s := h.scheduler(t, "u1")

	require.NoError(t, s.Init(context.Background(), ctxFor("12")))

	assert.Equal(t, domain.StateArmed, s.State())
	require.Equal(t, 1, h.timers.count())
	assert.Equal(t, time.Hour, h.timers.last().d)

	st := s.Status()
	require.NotNil(t, st.NextFireAt)
	assert.Equal(t, "2026-10-19 17:00", st.NextFireAt.In(madrid).Format("2006-01-02 15:04"))
	assert.True(t, h.store.has(kv.ContextKey("u1")))
}

func TestInit_IdleWithoutPermission(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler(t, "u1")

	require.NoError(t, s.Init(context.Background(), ctxFor("12")))

	assert.Equal(t, domain.StateIdle, s.State())
	assert.Zero(t, h.timers.count())
}

func TestInit_RestoresPersistedContext(t *testing.T) {
	h := newHarness(t)
	h.grant("u1")
	raw, err := json.Marshal(ctxFor("3"))
	require.NoError(t, err)
	require.NoError(t, h.store.Set(context.Background(), kv.ContextKey("u1"), string(raw)))

	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(context.Background(), nil))
	h.fireNext(t)

	require.Equal(t, 1, h.display.count())
	assert.Equal(t, "Ana, tienes 3 puntos", h.display.calls[0].Title)
}

func TestInit_NoContextAnywhere(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler(t, "u1")

	err := s.Init(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNoContext)
	assert.Equal(t, domain.StateUninitialized, s.State())
}

func TestFire_OncePerCalendarDay(t *testing.T) {
	h := newHarness(t)
	h.grant("u1")
	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(context.Background(), ctxFor("12")))

	h.fireNext(t)
	require.Equal(t, 1, h.display.count())
	assert.Equal(t, "https://puntos.example/puntos", h.display.calls[0].Link)
	last, err := h.store.Get(context.Background(), kv.LastDateKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", last)

	// re-armed for tomorrow
	assert.Equal(t, 2, h.timers.count())
	assert.Equal(t, 24*time.Hour, h.timers.last().d)
	assert.Equal(t, domain.StateArmed, s.State())

	// a spurious callback on the same day is a no-op for display
	h.timers.last().f()
	assert.Equal(t, 1, h.display.count())

	h.fireNext(t)
	assert.Equal(t, 2, h.display.count())
}

func TestFire_RestartMidDayDoesNotRefire(t *testing.T) {
	h := newHarness(t)
	h.grant("u1")
	h.clock.Set(time.Date(2026, 10, 19, 9, 0, 0, 0, madrid))
	require.NoError(t, h.store.Set(context.Background(), kv.LastDateKey("u1"), "2026-10-19"))

	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(context.Background(), ctxFor("12")))
	h.fireNext(t)

	assert.Zero(t, h.display.count())
	assert.Equal(t, domain.StateArmed, s.State())
	assert.Equal(t, 2, h.timers.count())
}

func TestFire_NoPointsSuppressedButReArmed(t *testing.T) {
	for _, pts := range []string{"0", "-4"} {
		t.Run(pts, func(t *testing.T) {
			h := newHarness(t)
			h.grant("u1")
			s := h.scheduler(t, "u1")
			require.NoError(t, s.Init(context.Background(), ctxFor(pts)))

			h.fireNext(t)

			assert.Zero(t, h.display.count())
			assert.Equal(t, 2, h.timers.count())
			assert.False(t, h.store.has(kv.LastDateKey("u1")))
		})
	}
}

func TestFire_PermissionLostNeverDisplays(t *testing.T) {
	h := newHarness(t)
	h.grant("u1")
	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(context.Background(), ctxFor("12")))

	s.Gate().Report(domain.PermissionDenied)
	h.fireNext(t)

	assert.Zero(t, h.display.count())
	assert.Equal(t, domain.StateIdle, s.State())
	assert.Equal(t, 1, h.timers.count())
}

func TestReportPermission_DeniedDisarms(t *testing.T) {
	h := newHarness(t)
	h.grant("u1")
	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(context.Background(), ctxFor("12")))
	armed := h.timers.last()

	require.NoError(t, s.ReportPermission(context.Background(), domain.PermissionDenied))

	assert.Equal(t, domain.StateIdle, s.State())
	assert.Equal(t, 1, armed.stopped)
	armed.f()
	assert.Zero(t, h.display.count())

	v, _ := h.store.Get(context.Background(), kv.PermissionKey("u1"))
	assert.Equal(t, "denied", v)
}

func TestFire_DeliveryFailureReportedAndReArmed(t *testing.T) {
	h := newHarness(t)
	h.display.err = errBoom
	h.grant("u1")
	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(context.Background(), ctxFor("12")))

	h.fireNext(t)

	require.Len(t, h.errs, 1)
	assert.ErrorIs(t, h.errs[0], domain.ErrNotificationDeliveryFailed)
	assert.ErrorIs(t, h.errs[0], errBoom)
	assert.False(t, h.store.has(kv.LastDateKey("u1")))
	assert.Equal(t, domain.StateArmed, s.State())
	assert.Equal(t, 2, h.timers.count())
}

func TestDestroy_IdempotentAndStopsTimerOnce(t *testing.T) {
	h := newHarness(t)
	h.grant("u1")
	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(context.Background(), ctxFor("12")))
	armed := h.timers.last()

	s.Destroy()
	s.Destroy()

	assert.Equal(t, 1, armed.stopped)
	assert.Equal(t, domain.StateDestroyed, s.State())

	armed.f()
	assert.Zero(t, h.display.count())
	assert.Equal(t, 1, h.timers.count())

	assert.ErrorIs(t, s.Init(context.Background(), ctxFor("1")), domain.ErrDestroyed)
	assert.ErrorIs(t, s.UpdateContext(context.Background(), *ctxFor("1")), domain.ErrDestroyed)
}

func TestDestroy_DuringDeliveryDiscardsResult(t *testing.T) {
	h := newHarness(t)
	h.grant("u1")
	s := h.scheduler(t, "u1")
	h.display.hook = s.Destroy
	require.NoError(t, s.Init(context.Background(), ctxFor("12")))

	h.fireNext(t)

	assert.Equal(t, 1, h.display.count())
	assert.Equal(t, domain.StateDestroyed, s.State())
	assert.Equal(t, 1, h.timers.count())
	assert.Empty(t, s.Status().LastFiredDate)
}

func TestUpdateContext_UsedByNextFire(t *testing.T) {
	h := newHarness(t)
	h.grant("u1")
	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(context.Background(), ctxFor("0")))

	require.NoError(t, s.UpdateContext(context.Background(), *ctxFor("40")))
	h.fireNext(t)

	require.Equal(t, 1, h.display.count())
	assert.Equal(t, "Ana, tienes 40 puntos", h.display.calls[0].Title)
}

func TestOnPermissionGranted_EstablishesPushChannel(t *testing.T) {
	h := newHarness(t)
	push := &fakePush{}
	sink := &recSink{}
	h.deps.Caps.SupportsPushChannel = true
	h.deps.Channel = NewPushChannel(push, h.store, sink, nil)
	require.NoError(t, h.store.Set(context.Background(), kv.DeviceKey("u1"), "device-token"))

	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(context.Background(), ctxFor("12")))
	assert.Equal(t, domain.StateIdle, s.State())
	assert.Empty(t, push.subscribed)

	require.NoError(t, s.ReportPermission(context.Background(), domain.PermissionGranted))

	assert.Equal(t, domain.StateArmed, s.State())
	assert.True(t, s.Status().HasToken)
	assert.Equal(t, []string{"device-token"}, push.subscribed)
	assert.Equal(t, []string{"device-token"}, sink.tokens)
	tok, err := h.store.Get(context.Background(), kv.TokenKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, "device-token", tok)
}

func TestInit_ChannelFailureDegradesToForeground(t *testing.T) {
	h := newHarness(t)
	h.grant("u1")
	h.deps.Caps.SupportsPushChannel = true
	h.deps.Channel = NewPushChannel(&fakePush{validateErr: errBoom}, h.store, nil, nil)
	require.NoError(t, h.store.Set(context.Background(), kv.DeviceKey("u1"), "device-token"))

	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(context.Background(), ctxFor("12")))

	assert.Equal(t, domain.StateArmed, s.State())
	assert.False(t, s.Status().HasToken)
	h.fireNext(t)
	assert.Equal(t, 1, h.display.count())
}

func TestUnsubscribe_ClearsScheduleAndRevokes(t *testing.T) {
	h := newHarness(t)
	push := &fakePush{}
	h.grant("u1")
	h.deps.Caps.SupportsPushChannel = true
	h.deps.Channel = NewPushChannel(push, h.store, nil, nil)
	ctx := context.Background()
	require.NoError(t, h.store.Set(ctx, kv.TokenKey("u1"), "tok"))
	require.NoError(t, h.store.Set(ctx, kv.LastDateKey("u1"), "2026-10-18"))

	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(ctx, ctxFor("12")))
	armed := h.timers.last()

	assert.True(t, s.Unsubscribe(ctx))

	assert.Equal(t, []string{"tok"}, push.unsubscribed)
	assert.Equal(t, 1, armed.stopped)
	assert.False(t, h.store.has(kv.TokenKey("u1")))
	assert.False(t, h.store.has(kv.LastDateKey("u1")))
	assert.True(t, h.store.has(kv.ContextKey("u1")))
	assert.Equal(t, domain.StateIdle, s.State())

	// calling it again is harmless
	assert.True(t, s.Unsubscribe(ctx))
	assert.Len(t, push.unsubscribed, 1)
}

func TestHandlePush_RequiresChannel(t *testing.T) {
	h := newHarness(t)
	h.grant("u1")
	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(context.Background(), ctxFor("12")))

	err := s.HandlePush(context.Background(), domain.PushEvent{Title: "hola", Body: "b"})
	assert.ErrorIs(t, err, domain.ErrChannelUnavailable)

	require.NoError(t, h.store.Set(context.Background(), kv.TokenKey("u2"), "tok"))
	h.grant("u2")
	s2 := h.scheduler(t, "u2")
	require.NoError(t, s2.Init(context.Background(), ctxFor("12")))
	require.NoError(t, s2.HandlePush(context.Background(), domain.PushEvent{Title: "hola", Body: "b"}))
	require.Equal(t, 1, h.display.count())
	assert.Equal(t, "hola", h.display.calls[0].Title)
}

func TestHandlePush_DeniedNeverDisplays(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Set(context.Background(), kv.TokenKey("u1"), "tok"))
	h.grant("u1")
	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(context.Background(), ctxFor("12")))
	require.NoError(t, s.ReportPermission(context.Background(), domain.PermissionDenied))

	err := s.HandlePush(context.Background(), domain.PushEvent{Title: "hola", Body: "b"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Zero(t, h.display.count())
}

func TestHandlePush_RestoredTokenWithoutGrant(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Set(context.Background(), kv.TokenKey("u1"), "tok"))
	require.NoError(t, h.store.Set(context.Background(), kv.PermissionKey("u1"), string(domain.PermissionDenied)))
	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(context.Background(), ctxFor("12")))

	err := s.HandlePush(context.Background(), domain.PushEvent{Title: "hola"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Zero(t, h.display.count())
}

func TestUnsubscribe_DuringDeliveryKeepsStateCleared(t *testing.T) {
	h := newHarness(t)
	h.grant("u1")
	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(context.Background(), ctxFor("12")))
	h.display.hook = func() { assert.True(t, s.Unsubscribe(context.Background())) }

	h.fireNext(t)

	assert.Equal(t, 1, h.display.count())
	assert.Equal(t, domain.StateIdle, s.State())
	assert.False(t, h.store.has(kv.LastDateKey("u1")))
	assert.Equal(t, 1, h.timers.count())
}

func TestReportPermission_DeniedDuringDeliveryDoesNotReArm(t *testing.T) {
	h := newHarness(t)
	h.grant("u1")
	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(context.Background(), ctxFor("12")))
	h.display.hook = func() {
		assert.NoError(t, s.ReportPermission(context.Background(), domain.PermissionDenied))
	}

	h.fireNext(t)

	assert.Equal(t, domain.StateIdle, s.State())
	assert.Equal(t, 1, h.timers.count())
}

func TestInit_PersistedDefaultDoesNotOverrideFreshGrant(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Set(context.Background(), kv.PermissionKey("u1"), string(domain.PermissionDefault)))
	s := h.scheduler(t, "u1")

	// the client reports granted before Init has loaded the stored state
	require.NoError(t, s.OnPermissionGranted(context.Background()))
	require.NoError(t, s.Init(context.Background(), ctxFor("12")))

	assert.Equal(t, domain.PermissionGranted, s.Gate().State())
	assert.Equal(t, domain.StateArmed, s.State())
}

func TestRegisterDevice_WithoutPushSupport(t *testing.T) {
	h := newHarness(t)
	s := h.scheduler(t, "u1")
	require.NoError(t, s.Init(context.Background(), ctxFor("12")))

	err := s.RegisterDevice(context.Background(), "dev")
	assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
	assert.True(t, h.store.has(kv.DeviceKey("u1")))
}
