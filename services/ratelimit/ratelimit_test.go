package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_Allow(t *testing.T) {
	ctx := context.Background()
	l := NewInMemory(1, 3)

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}
	ok, _ := l.Allow(ctx, "1.2.3.4")
	assert.False(t, ok, "burst exceeded")

	ok, _ = l.Allow(ctx, "5.6.7.8")
	assert.True(t, ok, "other clients are not limited")
}

func TestInMemory_evict(t *testing.T) {
	l := NewInMemory(1, 1)
	_, _ = l.Allow(context.Background(), "old")
	l.limiters["old"].lastSeen = time.Now().Add(-time.Hour)

	_, _ = l.Allow(context.Background(), "new")
	assert.NotContains(t, l.limiters, "old")
	assert.Contains(t, l.limiters, "new")
}

func TestNew(t *testing.T) {
	assert.IsType(t, &InMemory{}, New(nil, 5, 10))
}
