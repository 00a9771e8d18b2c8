package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/docflow/internal/clock"
)

func TestMemory_BlocksAfterThresholdAndExpires(t *testing.T) {
	clk := clock.NewMock(testNow)
	m := NewMemory(clk, DefaultWindow, 3, DefaultBlockFor)
	ctx := context.Background()
	ip := HashIP("10.0.0.1")

	for i := 0; i < 2; i++ {
		blocked, _, err := m.Failure(ctx, ip)
		require.NoError(t, err)
		require.False(t, blocked)
	}
	blocked, dur, err := m.Failure(ctx, ip)
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, DefaultBlockFor, dur)

	ok, retry, err := m.Allow(ctx, ip)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, DefaultBlockFor, retry)

	// other addresses are unaffected
	ok, _, _ = m.Allow(ctx, HashIP("10.0.0.2"))
	require.True(t, ok)

	clk.Advance(DefaultBlockFor)
	ok, _, _ = m.Allow(ctx, ip)
	require.True(t, ok)
}

func TestMemory_WindowResets(t *testing.T) {
	clk := clock.NewMock(testNow)
	m := NewMemory(clk, time.Minute, 2, time.Hour)
	ctx := context.Background()
	ip := HashIP("10.0.0.1")

	_, _, _ = m.Failure(ctx, ip)
	clk.Advance(2 * time.Minute)
	blocked, _, _ := m.Failure(ctx, ip)
	require.False(t, blocked, "old failure is outside the window")
}

func TestMemory_SuccessKeepsFailureCount(t *testing.T) {
	clk := clock.NewMock(testNow)
	m := NewMemory(clk, DefaultWindow, 3, DefaultBlockFor)
	ctx := context.Background()
	ip := HashIP("10.0.0.1")

	_, _, _ = m.Failure(ctx, ip)
	_, _, _ = m.Failure(ctx, ip)
	require.NoError(t, m.Success(ctx, ip))

	blocked, _, err := m.Failure(ctx, ip)
	require.NoError(t, err)
	require.True(t, blocked, "a found token must not reset earlier failures")

	// an active block survives a success
	require.NoError(t, m.Success(ctx, ip))
	ok, _, _ := m.Allow(ctx, ip)
	require.False(t, ok)
}
