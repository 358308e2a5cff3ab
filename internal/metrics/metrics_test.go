package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	before := testutil.ToFloat64(accessDecisionsTotal.WithLabelValues("deny", "IP address blocked"))
	ObserveDecision(false, "IP address blocked")
	assert.Equal(t, before+1, testutil.ToFloat64(accessDecisionsTotal.WithLabelValues("deny", "IP address blocked")))

	allowsBefore := testutil.ToFloat64(accessDecisionsTotal.WithLabelValues("allow", "allowed"))
	ObserveDecision(true, "allowed")
	assert.Equal(t, allowsBefore+1, testutil.ToFloat64(accessDecisionsTotal.WithLabelValues("allow", "allowed")))
	IncSecurityEvent("unauthorized_access", "high")
	IncRuleViolation("rate_limit")
	IncIPBlock("brute_force")
	IncAlert("sent")

	assert.Equal(t, 1.0, testutil.ToFloat64(ipBlocksTotal.WithLabelValues("brute_force")))
	assert.Equal(t, 1.0, testutil.ToFloat64(alertsTotal.WithLabelValues("sent")))

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
