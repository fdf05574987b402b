package pacing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInMemoryFrequencyCapper(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c := NewInMemoryFrequencyCapper()

	require.True(c.Allow(ctx, "ad-1", "viewer-1", 2))
	require.True(c.Allow(ctx, "ad-1", "viewer-1", 2))
	require.False(c.Allow(ctx, "ad-1", "viewer-1", 2), "third showing exceeds the cap")

	// Counters are per ad and per viewer.
	require.True(c.Allow(ctx, "ad-2", "viewer-1", 2))
	require.True(c.Allow(ctx, "ad-1", "viewer-2", 2))
}

func TestFrequencyCapDisabled(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c := NewInMemoryFrequencyCapper()

	for i := 0; i < 10; i++ {
		require.True(c.Allow(ctx, "ad-1", "viewer-1", 0), "zero limit disables capping")
	}
	require.True(c.Allow(ctx, "ad-1", "viewer-1", -1))
}

func TestFrequencyCapSkipsAnonymousViewers(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c := NewInMemoryFrequencyCapper()

	for i := 0; i < 5; i++ {
		require.True(c.Allow(ctx, "ad-1", "", 1))
	}
}
