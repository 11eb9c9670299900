package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/Puntos/internal/domain/kv"
	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
	"github.com/NordCoder/Puntos/internal/obs"
)

var fires = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reminder_fires_total",
	Help: "Timer fires by outcome.",
}, []string{"outcome"})

const (
	outcomeDelivered    = "delivered"
	outcomeFailed       = "failed"
	outcomeAlreadyFired = "already_fired"
	outcomeNoPoints     = "no_points"
	outcomeNotGranted   = "not_granted"
)

// Deps are the collaborators of one Scheduler.
type Deps struct {
	Config     domain.Config
	Clock      domain.Clock
	NewTimer   domain.TimerFactory
	Store      kv.Store
	Gate       *Gate
	Channel    Channel
	Deliverer  *Deliverer
	Foreground Strategy
	Caps       domain.Capabilities
	// Link is opened when the user clicks a notification.
	Link string
	// OnError receives delivery failures. It must not block.
	OnError func(userID string, err error)
	Log     *zap.Logger
}

// Scheduler fires the daily reminder for one user at most once per calendar
// day. It owns a single-shot timer that is re-armed after every fire.
type Scheduler struct {
	userID string
	d      Deps
	log    *zap.Logger

	mu        sync.Mutex
	state     domain.State
	uc        *domain.UserContext
	token     string
	lastFired string
	timer     domain.Timer
	nextAt    time.Time
	// gen invalidates pending timer callbacks and late fire results.
	gen uint64
}

func New(userID string, d Deps) (*Scheduler, error) {
	if userID == "" {
		return nil, errors.New("reminder: empty user id")
	}
	if d.Store == nil || d.Deliverer == nil {
		return nil, errors.New("reminder: store and deliverer are required")
	}
	if d.Config.Location == nil {
		d.Config.Location = time.Local
	}
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.NewTimer == nil {
		d.NewTimer = AfterFunc
	}
	if d.Channel == nil {
		d.Channel = ForegroundOnly{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Gate == nil {
		d.Gate = NewGate(userID, d.Caps, nil, 0, d.Log)
	}
	log := d.Log.With(zap.String("component", "reminder.scheduler"), zap.String("user_id", userID))
	if d.OnError == nil {
		d.OnError = func(_ string, err error) { log.Warn("reminder not delivered", zap.Error(err)) }
	}
	return &Scheduler{userID: userID, d: d, log: log, state: domain.StateUninitialized}, nil
}

func (s *Scheduler) UserID() string { return s.userID }

func (s *Scheduler) Gate() *Gate { return s.d.Gate }

// Init loads persisted state and arms the timer if permission is granted.
// A nil uc restores the persisted context; ErrNoContext when there is none.
// Calling Init again only replaces the context.
func (s *Scheduler) Init(ctx context.Context, uc *domain.UserContext) error {
	s.mu.Lock()
	switch s.state {
	case domain.StateDestroyed:
		s.mu.Unlock()
		return domain.ErrDestroyed
	case domain.StateUninitialized:
		s.state = domain.StateInitializing
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		if uc == nil {
			return nil
		}
		return s.UpdateContext(ctx, *uc)
	}

	if err := s.load(ctx, uc); err != nil {
		s.mu.Lock()
		if s.state == domain.StateInitializing {
			s.state = domain.StateUninitialized
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.StateDestroyed {
		return domain.ErrDestroyed
	}
	if s.canArmLocked() {
		s.armLocked()
	} else {
		s.state = domain.StateIdle
	}
	s.log.Info("scheduler initialized",
		zap.String("state", s.state.String()),
		zap.String("channel", s.d.Channel.Name()),
		zap.String("last_fired", s.lastFired),
	)
	return nil
}

// load runs without the lock held.
func (s *Scheduler) load(ctx context.Context, uc *domain.UserContext) error {
	st := s.d.Store
	if uc == nil {
		raw, err := st.Get(ctx, kv.ContextKey(s.userID))
		if errors.Is(err, kv.ErrNotFound) {
			return domain.ErrNoContext
		}
		if err != nil {
			return fmt.Errorf("load context: %w", err)
		}
		var restored domain.UserContext
		if err := json.Unmarshal([]byte(raw), &restored); err != nil {
			return fmt.Errorf("decode context: %w", err)
		}
		uc = &restored
	} else if err := s.persistContext(ctx, *uc); err != nil {
		return err
	}

	lastFired, err := getOptional(ctx, st, kv.LastDateKey(s.userID))
	if err != nil {
		return err
	}
	token, err := getOptional(ctx, st, kv.TokenKey(s.userID))
	if err != nil {
		return err
	}
	perm, err := getOptional(ctx, st, kv.PermissionKey(s.userID))
	if err != nil {
		return err
	}
	if p, perr := domain.ParsePermission(perm); perr == nil {
		s.d.Gate.Restore(p)
	}

	if token == "" {
		token = s.establish(ctx)
	}

	s.mu.Lock()
	ucCopy := *uc
	s.uc = &ucCopy
	s.lastFired = lastFired
	if token != "" {
		s.token = token
	}
	s.mu.Unlock()
	return nil
}

// establish sets up the push channel when it makes sense. Failures degrade
// to foreground-only delivery.
func (s *Scheduler) establish(ctx context.Context) string {
	if !s.d.Caps.SupportsPushChannel || s.d.Gate.State() != domain.PermissionGranted {
		return ""
	}
	token, err := s.d.Channel.Establish(ctx, s.userID)
	if err != nil {
		s.log.Info("push channel unavailable, foreground only", zap.Error(err))
		return ""
	}
	return token
}

func getOptional(ctx context.Context, st kv.Store, key string) (string, error) {
	v, err := st.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load %s: %w", key, err)
	}
	return v, nil
}

func (s *Scheduler) persistContext(ctx context.Context, uc domain.UserContext) error {
	raw, err := json.Marshal(uc)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	if err := s.d.Store.Set(ctx, kv.ContextKey(s.userID), string(raw)); err != nil {
		return fmt.Errorf("persist context: %w", err)
	}
	return nil
}

// UpdateContext replaces the display data used by the next fire.
func (s *Scheduler) UpdateContext(ctx context.Context, uc domain.UserContext) error {
	if s.isDestroyed() {
		return domain.ErrDestroyed
	}
	if err := s.persistContext(ctx, uc); err != nil {
		return err
	}
	s.mu.Lock()
	s.uc = &uc
	s.mu.Unlock()
	return nil
}

// ReportPermission records the permission state seen by the client. Granted
// arms the scheduler, denied disarms it.
func (s *Scheduler) ReportPermission(ctx context.Context, p domain.Permission) error {
	if s.isDestroyed() {
		return domain.ErrDestroyed
	}
	s.d.Gate.Report(p)
	if err := s.d.Store.Set(ctx, kv.PermissionKey(s.userID), string(p)); err != nil {
		s.log.Warn("persist permission failed", zap.Error(err))
	}
	if p == domain.PermissionGranted {
		return s.OnPermissionGranted(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.StateArmed || s.state == domain.StateFiring {
		s.disarmLocked()
		s.state = domain.StateIdle
	}
	return nil
}

// RequestPermission prompts the user through the gate and arms on success.
func (s *Scheduler) RequestPermission(ctx context.Context) (bool, error) {
	if s.isDestroyed() {
		return false, domain.ErrDestroyed
	}
	if !s.d.Gate.RequestPermission(ctx) {
		return false, nil
	}
	return true, s.ReportPermission(ctx, domain.PermissionGranted)
}

// OnPermissionGranted sets up the channel if missing and arms an idle scheduler.
func (s *Scheduler) OnPermissionGranted(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case domain.StateDestroyed:
		s.mu.Unlock()
		return domain.ErrDestroyed
	case domain.StateUninitialized, domain.StateInitializing:
		// Init arms once it sees the granted state.
		s.mu.Unlock()
		s.d.Gate.Report(domain.PermissionGranted)
		return nil
	}
	hasToken := s.token != ""
	s.mu.Unlock()

	s.d.Gate.Report(domain.PermissionGranted)
	var token string
	if !hasToken {
		token = s.establish(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.StateDestroyed {
		return domain.ErrDestroyed
	}
	if token != "" {
		s.token = token
	}
	if s.state == domain.StateIdle && s.canArmLocked() {
		s.armLocked()
	}
	return nil
}

// RegisterDevice stores the device token the browser obtained and, when
// permission allows, re-establishes the push channel with it.
func (s *Scheduler) RegisterDevice(ctx context.Context, device string) error {
	if s.isDestroyed() {
		return domain.ErrDestroyed
	}
	if device == "" {
		return fmt.Errorf("%w: empty device token", domain.ErrChannelUnavailable)
	}
	if err := s.d.Store.Set(ctx, kv.DeviceKey(s.userID), device); err != nil {
		return fmt.Errorf("persist device: %w", err)
	}
	if !s.d.Caps.SupportsPushChannel {
		return domain.ErrChannelUnavailable
	}
	if s.d.Gate.State() != domain.PermissionGranted {
		return nil
	}

	s.mu.Lock()
	old := s.token
	s.mu.Unlock()

	token, err := s.d.Channel.Establish(ctx, s.userID)
	if err != nil {
		return err
	}
	if old != "" && old != token {
		if rerr := s.d.Channel.Revoke(ctx, s.userID, old); rerr != nil {
			s.log.Warn("revoke previous token failed", zap.Error(rerr))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.StateDestroyed {
		return domain.ErrDestroyed
	}
	s.token = token
	return nil
}

func (s *Scheduler) canArmLocked() bool {
	return s.d.Gate.IsSupported() && s.d.Gate.State() == domain.PermissionGranted
}

func (s *Scheduler) armLocked() {
	s.disarmLocked()
	gen := s.gen
	now := s.d.Clock.Now()
	next := domain.NextFire(now, s.d.Config)
	s.nextAt = next
	s.timer = s.d.NewTimer(next.Sub(now), func() { s.fire(gen) })
	s.state = domain.StateArmed
}

func (s *Scheduler) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.nextAt = time.Time{}
	s.gen++
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != domain.StateArmed {
		s.mu.Unlock()
		return
	}
	s.state = domain.StateFiring
	s.timer = nil
	today := domain.CalendarDate(s.d.Clock.Now(), s.d.Config.Location)
	var uc *domain.UserContext
	if s.uc != nil {
		cp := *s.uc
		uc = &cp
	}
	token, last := s.token, s.lastFired
	s.mu.Unlock()

	ctx, span := otel.Tracer("reminder.scheduler").Start(context.Background(), "reminder.fire",
		trace.WithAttributes(attribute.String("user.id", s.userID), attribute.String("date", today)))
	outcome := s.fireOnce(ctx, today, last, token, uc)
	span.SetAttributes(attribute.String("outcome", outcome))
	span.End()
	fires.WithLabelValues(outcome).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateFiring {
		// destroyed, unsubscribed or denied while delivering
		return
	}
	if outcome == outcomeDelivered {
		s.lastFired = today
		// under the lock so a concurrent Unsubscribe cannot be undone
		if err := s.d.Store.Set(ctx, kv.LastDateKey(s.userID), today); err != nil {
			s.log.Warn("persist last fired date failed", zap.Error(err))
		}
	}
	if !s.canArmLocked() {
		s.state = domain.StateIdle
		return
	}
	// skipped fires re-arm too
	s.armLocked()
}

func (s *Scheduler) fireOnce(ctx context.Context, today, last, token string, uc *domain.UserContext) string {
	log := obs.WithTrace(ctx, s.log)
	switch {
	case last == today:
		return outcomeAlreadyFired
	case uc == nil || uc.Points.Sign() <= 0:
		return outcomeNoPoints
	case s.d.Gate.State() != domain.PermissionGranted:
		return outcomeNotGranted
	}

	n := domain.DailyReminder(*uc, s.d.Link)
	via, err := s.d.Deliverer.Deliver(ctx, s.userID, token, n)
	if err != nil {
		s.d.OnError(s.userID, err)
		return outcomeFailed
	}
	log.Info("daily reminder delivered", zap.String("via", via), zap.String("date", today))
	return outcomeDelivered
}

// HandlePush shows an inbound push message while the user is in the foreground.
// It only applies once a push channel exists and permission is granted.
func (s *Scheduler) HandlePush(ctx context.Context, ev domain.PushEvent) error {
	s.mu.Lock()
	destroyed, token := s.state == domain.StateDestroyed, s.token
	s.mu.Unlock()
	if destroyed {
		return domain.ErrDestroyed
	}
	if s.d.Gate.State() != domain.PermissionGranted {
		return domain.ErrPermissionDenied
	}
	if token == "" || s.d.Foreground == nil {
		return domain.ErrChannelUnavailable
	}
	n := domain.Notification{Title: ev.Title, Body: ev.Body, Icon: ev.Icon, Link: s.d.Link}
	if err := s.d.Foreground.Deliver(ctx, s.userID, token, n); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotificationDeliveryFailed, err)
	}
	return nil
}

// Unsubscribe revokes the push channel, cancels the timer and clears the
// persisted schedule. It is best effort and always reports success.
func (s *Scheduler) Unsubscribe(ctx context.Context) bool {
	s.mu.Lock()
	token := s.token
	s.token = ""
	s.lastFired = ""
	s.disarmLocked()
	if s.state == domain.StateArmed || s.state == domain.StateFiring {
		s.state = domain.StateIdle
	}
	s.mu.Unlock()

	if token != "" {
		if err := s.d.Channel.Revoke(ctx, s.userID, token); err != nil {
			s.log.Warn("revoke failed", zap.Error(err))
		}
	}
	if err := s.d.Store.Delete(ctx, kv.LastDateKey(s.userID), kv.TokenKey(s.userID)); err != nil {
		s.log.Warn("clear schedule failed", zap.Error(err))
	}
	return true
}

// Destroy stops the timer. It is idempotent and late results are discarded.
func (s *Scheduler) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.StateDestroyed {
		return
	}
	s.disarmLocked()
	s.state = domain.StateDestroyed
}

func (s *Scheduler) isDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == domain.StateDestroyed
}

func (s *Scheduler) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := domain.Status{
		UserID:        s.userID,
		State:         s.state.String(),
		Permission:    s.d.Gate.State(),
		Channel:       s.d.Channel.Name(),
		HasToken:      s.token != "",
		LastFiredDate: s.lastFired,
		FireAt:        s.d.Config.String(),
	}
	if !s.nextAt.IsZero() {
		next := s.nextAt
		st.NextFireAt = &next
	}
	return st
}
