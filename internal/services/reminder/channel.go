package reminder

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/NordCoder/Puntos/internal/domain/kv"
	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
)

// Channel sets up the background delivery path for a user.
type Channel interface {
	Name() string
	// Establish returns a delivery token or an error wrapping domain.ErrChannelUnavailable.
	Establish(ctx context.Context, userID string) (string, error)
	Revoke(ctx context.Context, userID, token string) error
}

// ForegroundOnly is used when no push service is configured.
type ForegroundOnly struct{}

func (ForegroundOnly) Name() string { return "foreground" }

func (ForegroundOnly) Establish(context.Context, string) (string, error) {
	return "", domain.ErrChannelUnavailable
}

func (ForegroundOnly) Revoke(context.Context, string, string) error { return nil }

// PushClient is the FCM surface the push channel needs.
type PushClient interface {
	Validate(ctx context.Context, token string) error
	Subscribe(ctx context.Context, token string) error
	Unsubscribe(ctx context.Context, token string) error
}

type PushChannel struct {
	push  PushClient
	store kv.Store
	sink  domain.TokenSink
	log   *zap.Logger
}

func NewPushChannel(push PushClient, store kv.Store, sink domain.TokenSink, log *zap.Logger) *PushChannel {
	if log == nil {
		log = zap.NewNop()
	}
	return &PushChannel{push: push, store: store, sink: sink, log: log.With(zap.String("component", "reminder.push_channel"))}
}

func (c *PushChannel) Name() string { return "push" }

// Establish turns the device token registered by the browser into an active
// delivery token: it is validated, subscribed to the reminders topic, persisted
// and handed to the token sink.
func (c *PushChannel) Establish(ctx context.Context, userID string) (string, error) {
	device, err := c.store.Get(ctx, kv.DeviceKey(userID))
	if errors.Is(err, kv.ErrNotFound) || (err == nil && device == "") {
		return "", fmt.Errorf("%w: no device registered", domain.ErrChannelUnavailable)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	if err := c.push.Validate(ctx, device); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	if err := c.push.Subscribe(ctx, device); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	if err := c.store.Set(ctx, kv.TokenKey(userID), device); err != nil {
		return "", fmt.Errorf("%w: persist token: %v", domain.ErrChannelUnavailable, err)
	}
	if c.sink != nil {
		if err := c.sink.SendTokenToServer(ctx, userID, device); err != nil {
			c.log.Warn("token sink failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return device, nil
}

func (c *PushChannel) Revoke(ctx context.Context, _ string, token string) error {
	if token == "" {
		return nil
	}
	return c.push.Unsubscribe(ctx, token)
}

// LogTokenSink only records tokens; the server side registry lives upstream.
type LogTokenSink struct{ Log *zap.Logger }

func (s LogTokenSink) SendTokenToServer(_ context.Context, userID, token string) error {
	if s.Log != nil {
		s.Log.Info("delivery token established", zap.String("user_id", userID), zap.Int("token_len", len(token)))
	}
	return nil
}
