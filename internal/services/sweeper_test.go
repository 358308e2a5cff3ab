package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBlockSweeper_InvalidSchedule(t *testing.T) {
	repos := setupServicesTestDB(t)
	_, err := NewBlockSweeper(NewBlockService(repos.Blocks), "not a schedule")
	assert.Error(t, err)
}

func TestBlockSweeper_Sweep(t *testing.T) {
	repos := setupServicesTestDB(t)
	clk := newFakeClock()
	blocks := NewBlockService(repos.Blocks)
	blocks.SetClock(clk.Now)
	ctx := context.Background()

	require.NoError(t, blocks.Block(ctx, "10.0.0.1", 5, "short"))
	require.NoError(t, blocks.Block(ctx, "10.0.0.2", 60, "long"))
	require.NoError(t, blocks.BlockPermanently(ctx, "10.0.0.3", "forever"))
	clk.Advance(10 * time.Minute)

	s, err := NewBlockSweeper(blocks, "@every 1h")
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	remaining, err := blocks.List(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}
