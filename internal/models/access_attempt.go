package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Geolocation is the coarse location resolved for an IP address.
type Geolocation struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Country   string  `json:"country"`
	City      string  `json:"city"`
}

// AccessAttempt is one row per authorization check. Success starts false and
// is flipped once every check has passed; no other field changes.
type AccessAttempt struct {
	ID          string       `json:"id" gorm:"primaryKey"`
	ActorID     string       `json:"actor_id" gorm:"index:idx_attempt_actor_ip,priority:1"`
	IPAddress   string       `json:"ip_address" gorm:"index:idx_attempt_actor_ip,priority:2;index:idx_attempt_ip_time,priority:1"`
	UserAgent   string       `json:"user_agent"`
	Timestamp   time.Time    `json:"timestamp" gorm:"index:idx_attempt_actor_ip,priority:3;index:idx_attempt_ip_time,priority:2"`
	Success     bool         `json:"success"`
	Resource    string       `json:"resource"`
	Action      string       `json:"action"`
	Geolocation *Geolocation `json:"geolocation,omitempty" gorm:"embedded;embeddedPrefix:geo_"`
}

func (a *AccessAttempt) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	return
}
