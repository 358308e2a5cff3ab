package services

import (
	"context"
	"time"

	"github.com/Wikid82/warden/internal/models"
)

// RequestContext is everything the engine knows about one authorization check.
// AttemptID is the ledger row logged for the check itself.
type RequestContext struct {
	AttemptID string
	ActorID   string
	IPAddress string
	UserAgent string
	Resource  string
	Action    string
	// Geolocation is resolved once per check and may be nil.
	Geolocation *models.Geolocation
}

// Country returns the resolved country code, or "" when unknown.
func (rc RequestContext) Country() string {
	if rc.Geolocation == nil {
		return ""
	}
	return rc.Geolocation.Country
}

// Decision is the only verdict returned to callers; detection details stay
// in the security event log.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Alerter delivers high-severity events to operators. Implementations must
// not block for long; failures are logged by the caller and never surfaced.
type Alerter interface {
	Send(ctx context.Context, event *models.SecurityEvent) error
}

// UnknownIP is used when neither forwarding headers nor the socket reveal a client.
const UnknownIP = "0.0.0.0"

// identifiableIP reports whether ip names a concrete client worth blocking.
func identifiableIP(ip string) bool {
	return ip != "" && ip != UnknownIP
}

type clock func() time.Time
