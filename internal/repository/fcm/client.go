package fcm

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/NordCoder/Puntos/internal/obs/retry"
)

type Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Topic           string `mapstructure:"topic"`
}

// InitResult is the outcome of Open. Callers pick their delivery strategy from it.
type InitResult int

const (
	InitOK InitResult = iota
	InitUnsupported
	InitError
)

func (r InitResult) String() string {
	switch r {
	case InitOK:
		return "ok"
	case InitUnsupported:
		return "unsupported"
	default:
		return "error"
	}
}

var ErrEmptyToken = errors.New("fcm: empty registration token")

// Messenger is the part of *messaging.Client we use.
type Messenger interface {
	Send(ctx context.Context, m *messaging.Message) (string, error)
	SendDryRun(ctx context.Context, m *messaging.Message) (string, error)
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

type Client struct {
	m     Messenger
	topic string
}

// Open builds the firebase app and its messaging client. A disabled config or
// a missing credentials file yields InitUnsupported with a nil client.
func Open(ctx context.Context, cfg Config) (*Client, InitResult, error) {
	if !cfg.Enabled || cfg.CredentialsFile == "" {
		return nil, InitUnsupported, nil
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID},
		option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, InitError, fmt.Errorf("firebase app: %w", err)
	}
	m, err := app.Messaging(ctx)
	if err != nil {
		return nil, InitError, fmt.Errorf("firebase messaging: %w", err)
	}
	return New(m, cfg.Topic), InitOK, nil
}

func New(m Messenger, topic string) *Client {
	if topic == "" {
		topic = "puntos-reminders"
	}
	return &Client{m: m, topic: topic}
}

func message(token, title, body, icon, link string) *messaging.Message {
	msg := &messaging.Message{
		Token:        token,
		Notification: &messaging.Notification{Title: title, Body: body, ImageURL: icon},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{Title: title, Body: body, Icon: icon},
		},
	}
	if link != "" {
		msg.Webpush.FCMOptions = &messaging.WebpushFCMOptions{Link: link}
	}
	return msg
}

// SendToToken delivers one notification to a single device.
func (c *Client) SendToToken(ctx context.Context, token, title, body, icon, link string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if _, err := c.m.Send(ctx, message(token, title, body, icon, link)); err != nil {
		err = fmt.Errorf("fcm send: %w", err)
		if anyCause(err, messaging.IsUnregistered, messaging.IsInvalidArgument) {
			return retry.Permanent(err)
		}
		return err
	}
	return nil
}

// Validate dry-runs a message against token, proving FCM accepts it.
func (c *Client) Validate(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if _, err := c.m.SendDryRun(ctx, message(token, "validate", "", "", "")); err != nil {
		return fmt.Errorf("fcm dry run: %w", err)
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, token string) error {
	resp, err := c.m.SubscribeToTopic(ctx, []string{token}, c.topic)
	return topicErr("subscribe", resp, err)
}

func (c *Client) Unsubscribe(ctx context.Context, token string) error {
	resp, err := c.m.UnsubscribeFromTopic(ctx, []string{token}, c.topic)
	return topicErr("unsubscribe", resp, err)
}

func topicErr(op string, resp *messaging.TopicManagementResponse, err error) error {
	if err != nil {
		return fmt.Errorf("fcm %s: %w", op, err)
	}
	if resp != nil && resp.FailureCount > 0 {
		reason := "unknown"
		if len(resp.Errors) > 0 && resp.Errors[0] != nil {
			reason = resp.Errors[0].Reason
		}
		return fmt.Errorf("fcm %s: %s", op, reason)
	}
	return nil
}

// Retryable reports transient FCM failures worth another attempt.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrEmptyToken) || errors.Is(err, context.Canceled) {
		return false
	}
	return anyCause(err, messaging.IsUnavailable, messaging.IsInternal, messaging.IsQuotaExceeded) ||
		errors.Is(err, context.DeadlineExceeded)
}

// anyCause applies the firebase classifiers to every error in the chain;
// they only recognise an unwrapped *FirebaseError.
func anyCause(err error, checks ...func(error) bool) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		for _, check := range checks {
			if check(e) {
				return true
			}
		}
	}
	return false
}
