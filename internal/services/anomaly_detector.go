package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Wikid82/warden/internal/config"
	"github.com/Wikid82/warden/internal/logger"
	"github.com/Wikid82/warden/internal/metrics"
	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/store"
)

type heuristic struct {
	name string
	run  func(ctx context.Context, rc RequestContext) error
}

// AnomalyDetector runs behavioural heuristics after a request has been
// authorized. It never changes the decision; findings become security
// events and, for brute force, an IP block.
type AnomalyDetector struct {
	ledger     *LedgerService
	blocks     *BlockService
	cfg        config.AnomalyConfig
	now        clock
	heuristics []heuristic
}

func NewAnomalyDetector(ledger *LedgerService, blocks *BlockService, cfg config.AnomalyConfig) *AnomalyDetector {
	d := &AnomalyDetector{
		ledger: ledger,
		blocks: blocks,
		cfg:    cfg,
		now:    time.Now,
	}
	d.heuristics = []heuristic{
		{name: "multiple_ips", run: d.DetectMultipleIPs},
		{name: "brute_force", run: d.detectBruteForce},
		{name: "unusual_time", run: d.detectUnusualTime},
		{name: "device_change", run: d.detectDeviceChange},
	}
	return d
}

// SetClock overrides the time source.
func (d *AnomalyDetector) SetClock(now func() time.Time) { d.now = now }

// Run executes every heuristic. A failing or panicking heuristic is logged
// and does not stop the others.
func (d *AnomalyDetector) Run(ctx context.Context, rc RequestContext) {
	for _, h := range d.heuristics {
		if err := d.runOne(ctx, h, rc); err != nil {
			logger.WithFields(logrus.Fields{
				"heuristic": h.name,
				"actor":     rc.ActorID,
			}).WithError(err).Warn("anomaly heuristic failed")
		}
	}
}

func (d *AnomalyDetector) runOne(ctx context.Context, h heuristic, rc RequestContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.run(ctx, rc)
}

// DetectMultipleIPs raises a medium event when the actor has succeeded from
// more than the configured number of distinct addresses within the window.
func (d *AnomalyDetector) DetectMultipleIPs(ctx context.Context, rc RequestContext) error {
	if rc.ActorID == "" {
		return nil
	}
	ips, err := d.ledger.DistinctIPsForActor(ctx, rc.ActorID, d.now().Add(-d.cfg.MultiIPWindow))
	if err != nil {
		return err
	}
	if len(ips) <= d.cfg.MultiIPThreshold {
		return nil
	}

	ev := &models.SecurityEvent{
		Type:      models.EventSuspiciousActivity,
		Severity:  models.SeverityMedium,
		ActorID:   rc.ActorID,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
	}
	if err := ev.SetDetails(models.MultiIPDetails{
		IPs:       ips,
		Window:    d.cfg.MultiIPWindow.String(),
		Threshold: d.cfg.MultiIPThreshold,
	}); err != nil {
		return err
	}
	return d.ledger.LogEvent(ctx, ev)
}

func (d *AnomalyDetector) detectBruteForce(ctx context.Context, rc RequestContext) error {
	return d.DetectBruteForce(ctx, rc.IPAddress, rc.AttemptID)
}

// DetectBruteForce blocks ip once it has accumulated the configured number
// of failed attempts within the window. excludeID names an attempt that is
// still pending and must not be counted as a failure.
func (d *AnomalyDetector) DetectBruteForce(ctx context.Context, ip, excludeID string) error {
	if !identifiableIP(ip) {
		return nil
	}
	failed := false
	n, err := d.ledger.CountAttempts(ctx, store.AttemptFilter{
		IPAddress: ip,
		Since:     d.now().Add(-d.cfg.BruteForceWindow),
		Success:   &failed,
		ExcludeID: excludeID,
	})
	if err != nil {
		return err
	}
	if n < int64(d.cfg.BruteForceThreshold) {
		return nil
	}

	ev := &models.SecurityEvent{
		Type:      models.EventSuspiciousActivity,
		Severity:  models.SeverityHigh,
		IPAddress: ip,
	}
	if err := ev.SetDetails(models.BruteForceDetails{
		FailedAttempts: n,
		Window:         d.cfg.BruteForceWindow.String(),
		BlockMinutes:   d.cfg.BruteForceBlockMinutes,
	}); err != nil {
		return err
	}
	if err := d.ledger.LogEvent(ctx, ev); err != nil {
		return err
	}
	if err := d.blocks.Block(ctx, ip, d.cfg.BruteForceBlockMinutes, "Brute force attack detected"); err != nil {
		return err
	}
	metrics.IncIPBlock("brute_force")
	return nil
}

// detectUnusualTime has no baseline to compare against yet.
func (d *AnomalyDetector) detectUnusualTime(ctx context.Context, rc RequestContext) error {
	return nil
}

// detectDeviceChange has no device history to compare against yet.
func (d *AnomalyDetector) detectDeviceChange(ctx context.Context, rc RequestContext) error {
	return nil
}
