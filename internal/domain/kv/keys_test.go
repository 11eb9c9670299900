package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserFromContextKey(t *testing.T) {
	id, ok := UserFromContextKey(ContextKey("42"))
	assert.True(t, ok)
	assert.Equal(t, "42", id)

	_, ok = UserFromContextKey(TokenKey("42"))
	assert.False(t, ok)

	_, ok = UserFromContextKey("puntos:reminder::context")
	assert.False(t, ok)
}
