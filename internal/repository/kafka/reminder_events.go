package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/NordCoder/Puntos/internal/domain/kafka"
)

type ReminderEventsKafka struct {
	p *Producer
}

func NewReminderEventsKafka(p *Producer) *ReminderEventsKafka { return &ReminderEventsKafka{p: p} }

var _ kafka.ReminderEvents = (*ReminderEventsKafka)(nil)

func (e *ReminderEventsKafka) PublishReminderRequested(ctx context.Context, req kafka.ReminderRequest) error {
	msg, err := ReminderToStruct(req)
	if err != nil {
		return err
	}
	return e.p.PublishProto(ctx, KeyFromString(req.UserID), msg)
}

// ReminderToStruct encodes a request as a protobuf Struct for the wire.
func ReminderToStruct(req kafka.ReminderRequest) (*structpb.Struct, error) {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now()
	}
	s, err := structpb.NewStruct(map[string]any{
		"id":           req.ID,
		"user_id":      req.UserID,
		"title":        req.Title,
		"body":         req.Body,
		"icon":         req.Icon,
		"link":         req.Link,
		"token":        req.Token,
		"requested_at": req.RequestedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("reminder struct: %w", err)
	}
	return s, nil
}

var ErrMalformedReminder = errors.New("malformed reminder request")

func ReminderFromStruct(s *structpb.Struct) (kafka.ReminderRequest, error) {
	f := s.GetFields()
	str := func(k string) string { return f[k].GetStringValue() }

	req := kafka.ReminderRequest{
		ID:     str("id"),
		UserID: str("user_id"),
		Title:  str("title"),
		Body:   str("body"),
		Icon:   str("icon"),
		Link:   str("link"),
		Token:  str("token"),
	}
	if req.ID == "" || req.UserID == "" {
		return kafka.ReminderRequest{}, ErrMalformedReminder
	}
	if ts := str("requested_at"); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return kafka.ReminderRequest{}, fmt.Errorf("%w: requested_at: %v", ErrMalformedReminder, err)
		}
		req.RequestedAt = t
	}
	return req, nil
}

// ReminderHandler adapts a typed reminder callback to a consumer Handler.
func ReminderHandler(handle func(context.Context, kafka.ReminderRequest) error) Handler {
	return ProtoHandler(func() *structpb.Struct { return &structpb.Struct{} },
		func(ctx context.Context, _ []byte, s *structpb.Struct) error {
			req, err := ReminderFromStruct(s)
			if err != nil {
				return err
			}
			return handle(ctx, req)
		})
}
