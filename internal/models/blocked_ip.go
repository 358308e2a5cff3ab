package models

import (
	"time"
)

// BlockedIP bans an address until ExpiresAt, or forever when Permanent.
type BlockedIP struct {
	IPAddress string     `json:"ip_address" gorm:"primaryKey"`
	BlockedAt time.Time  `json:"blocked_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" gorm:"index"`
	Reason    string     `json:"reason"`
	Permanent bool       `json:"permanent"`
}

// Active reports whether the block still applies at now. A temporary block
// without an expiry is treated as expired.
func (b *BlockedIP) Active(now time.Time) bool {
	if b.Permanent {
		return true
	}
	return b.ExpiresAt != nil && b.ExpiresAt.After(now)
}
