package util

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInviteCode(t *testing.T) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code, err := GenerateInviteCode(20)
	require.NoError(t, err)
	assert.Len(t, code, 20)
	for _, r := range code {
		assert.True(t, strings.ContainsRune(charset, r), "unexpected character %q in invite code", r)
	}

	// Two codes colliding would mean something is badly wrong with the source
	// of randomness.
	other, err := GenerateInviteCode(20)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestNullablePgText(t *testing.T) {
	assert.False(t, NullablePgText(nil).Valid)

	s := "hello"
	got := NullablePgText(&s)
	assert.True(t, got.Valid)
	assert.Equal(t, "hello", got.String)
}

func TestNullablePgTimestamp(t *testing.T) {
	assert.False(t, NullablePgTimestamp(nil).Valid)

	now := time.Now()
	got := NullablePgTimestamp(&now)
	assert.True(t, got.Valid)
	assert.Equal(t, now, got.Time)
}
