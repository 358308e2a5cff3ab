package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	accessDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_access_decisions_total",
		Help: "Total number of access decisions by result and reason",
	}, []string{"result", "reason"})
	securityEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_security_events_total",
		Help: "Total number of security events recorded",
	}, []string{"type", "severity"})
	ruleViolationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_rule_violations_total",
		Help: "Total number of security rule violations by rule type",
	}, []string{"rule_type"})
	ipBlocksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_ip_blocks_total",
		Help: "Total number of IP blocks created by source",
	}, []string{"source"})
	alertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_alerts_total",
		Help: "Total number of alert deliveries by outcome",
	}, []string{"outcome"})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry prometheus.Registerer) {
	registry.MustRegister(accessDecisionsTotal, securityEventsTotal, ruleViolationsTotal, ipBlocksTotal, alertsTotal)
}

// ObserveDecision counts an allow/deny verdict. Allows carry the reason "allowed".
func ObserveDecision(allowed bool, reason string) {
	result := "deny"
	if allowed {
		result = "allow"
	}
	accessDecisionsTotal.WithLabelValues(result, reason).Inc()
}

// IncSecurityEvent counts a stored security event.
func IncSecurityEvent(eventType, severity string) {
	securityEventsTotal.WithLabelValues(eventType, severity).Inc()
}

// IncRuleViolation counts a fired rule.
func IncRuleViolation(ruleType string) { ruleViolationsTotal.WithLabelValues(ruleType).Inc() }

// IncIPBlock counts a block created by "rule", "brute_force" or "manual".
func IncIPBlock(source string) { ipBlocksTotal.WithLabelValues(source).Inc() }

// IncAlert counts an alert delivery outcome: sent, failed or dropped.
func IncAlert(outcome string) { alertsTotal.WithLabelValues(outcome).Inc() }
