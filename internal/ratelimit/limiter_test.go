package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "pk_a")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}

	ok, err := l.Allow(ctx, "pk_a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "pk_b")
	assert.True(t, ok, "keys are limited independently")
}

func TestNew(t *testing.T) {
	assert.Nil(t, New(nil, 0))
	assert.Nil(t, New(nil, -1))
	assert.IsType(t, &MemoryLimiter{}, New(nil, 10))
}
