package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/store"
)

var ErrInvalidBlockDuration = errors.New("block duration must be positive")

// BlockService is the IP block registry. Expired temporary blocks are
// removed when they are next looked up.
type BlockService struct {
	blocks store.BlockRepository
	now    clock
}

func NewBlockService(blocks store.BlockRepository) *BlockService {
	return &BlockService{blocks: blocks, now: time.Now}
}

// SetClock overrides the time source.
func (s *BlockService) SetClock(now func() time.Time) { s.now = now }

// IsBlocked reports whether ip is currently banned, deleting the record if
// its temporary block has lapsed.
func (s *BlockService) IsBlocked(ctx context.Context, ip string) (bool, error) {
	b, err := s.blocks.Get(ctx, ip)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup block: %w", err)
	}
	if b.Active(s.now()) {
		return true, nil
	}
	if err := s.blocks.Delete(ctx, ip); err != nil {
		return false, fmt.Errorf("expire block: %w", err)
	}
	return false, nil
}

// Block bans ip for the given number of minutes, replacing any previous block.
func (s *BlockService) Block(ctx context.Context, ip string, minutes int, reason string) error {
	if minutes <= 0 {
		return ErrInvalidBlockDuration
	}
	now := s.now()
	expires := now.Add(time.Duration(minutes) * time.Minute)
	if err := s.blocks.Upsert(ctx, &models.BlockedIP{
		IPAddress: ip,
		BlockedAt: now,
		ExpiresAt: &expires,
		Reason:    reason,
	}); err != nil {
		return fmt.Errorf("block ip: %w", err)
	}
	return nil
}

// BlockPermanently bans ip until an administrator removes the record.
func (s *BlockService) BlockPermanently(ctx context.Context, ip, reason string) error {
	if err := s.blocks.Upsert(ctx, &models.BlockedIP{
		IPAddress: ip,
		BlockedAt: s.now(),
		Reason:    reason,
		Permanent: true,
	}); err != nil {
		return fmt.Errorf("block ip: %w", err)
	}
	return nil
}

// PurgeExpired deletes every lapsed temporary block.
func (s *BlockService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.blocks.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge expired blocks: %w", err)
	}
	return n, nil
}

func (s *BlockService) List(ctx context.Context) ([]models.BlockedIP, error) {
	return s.blocks.List(ctx)
}
