package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(5, time.Minute)

	for i := 0; i < 5; i++ {
		assert.True(t, tb.Allow(), "token %d", i+1)
	}
	assert.False(t, tb.Allow())

	tb.Reset()
	assert.True(t, tb.Allow())
}

func TestTokenBucketWaitHonoursContext(t *testing.T) {
	tb := NewTokenBucket(1, time.Hour)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, tb.Wait(ctx))
}

func TestTokenBucketRefills(t *testing.T) {
	tb := NewTokenBucket(10, 100*time.Millisecond)
	for tb.Allow() {
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, tb.Wait(ctx))
}

func TestPerMinute(t *testing.T) {
	assert.IsType(t, Unlimited{}, PerMinute(0))
	assert.IsType(t, &TokenBucket{}, PerMinute(60))

	u := PerMinute(-1)
	for i := 0; i < 100; i++ {
		assert.True(t, u.Allow())
	}
	assert.NoError(t, u.Wait(context.Background()))
}
