package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Wikid82/warden/internal/logger"
)

// BlockSweeper periodically removes lapsed bans. IsBlocked already ignores
// expired records, so the sweeper only keeps the table small.
type BlockSweeper struct {
	blocks *BlockService
	cron   *cron.Cron
}

// NewBlockSweeper schedules a purge using a standard cron expression or a
// descriptor such as "@every 10m".
func NewBlockSweeper(blocks *BlockService, schedule string) (*BlockSweeper, error) {
	s := &BlockSweeper{blocks: blocks, cron: cron.New()}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweeper schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *BlockSweeper) Start() { s.cron.Start() }

// Stop waits for a running purge to finish.
func (s *BlockSweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep purges expired blocks once.
func (s *BlockSweeper) Sweep(ctx context.Context) (int64, error) {
	return s.blocks.PurgeExpired(ctx)
}

func (s *BlockSweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.Sweep(ctx)
	if err != nil {
		logger.Log().WithError(err).Warn("expired block sweep failed")
		return
	}
	if n > 0 {
		logger.Log().WithField("removed", n).Info("purged expired IP blocks")
	}
}
