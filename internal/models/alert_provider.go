package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AlertProvider is an outbound channel for high-severity security events.
type AlertProvider struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"` // discord, slack, telegram, smtp, generic, webhook
	URL         string    `json:"url"`  // shoutrrr URL, or the endpoint for webhook
	Enabled     bool      `json:"enabled"`
	MinSeverity Severity  `json:"min_severity"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p *AlertProvider) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if strings.TrimSpace(string(p.MinSeverity)) == "" {
		p.MinSeverity = SeverityHigh
	}
	return
}
