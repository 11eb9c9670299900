package kafka

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// ProtoHandler unmarshals each message value into a fresh M before handing it on.
func ProtoHandler[M proto.Message](ctor func() M, handle func(context.Context, []byte, M) error) Handler {
	return func(ctx context.Context, key, value []byte) error {
		msg := ctor()
		if err := proto.Unmarshal(value, msg); err != nil {
			return fmt.Errorf("proto unmarshal: %w", err)
		}
		return handle(ctx, key, msg)
	}
}
