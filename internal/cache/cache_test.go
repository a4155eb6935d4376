package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Total int    `json:"total"`
	Date  string `json:"date"`
}

func TestInMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory()

	var got payload
	hit, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "k", payload{Total: 3, Date: "2025-11-03"}, time.Hour))
	hit, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, payload{Total: 3, Date: "2025-11-03"}, got)
}

func TestInMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 8, 0, 0, 0, time.UTC)
	c := NewInMemory().WithClock(func() time.Time { return now })

	require.NoError(t, c.Set(ctx, "k", payload{Total: 1}, time.Hour))

	now = now.Add(59 * time.Minute)
	var got payload
	hit, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)

	now = now.Add(time.Minute)
	hit, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit, "entry must expire once the ttl has elapsed")
	assert.Equal(t, 0, c.Len())
}

func TestInMemoryDelete(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory()
	require.NoError(t, c.Set(ctx, "a", 1, 0))
	require.NoError(t, c.Set(ctx, "b", 2, 0))
	require.NoError(t, c.Set(ctx, "c", 3, 0))

	require.NoError(t, c.Delete(ctx, "a", "b", "missing"))

	var v int
	hit, _ := c.Get(ctx, "a", &v)
	assert.False(t, hit)
	hit, _ = c.Get(ctx, "c", &v)
	assert.True(t, hit)
	assert.Equal(t, 3, v)
}
