// Package cerberus is the single entry point for access decisions. It runs
// the block registry, rule engine, permission lookup and anomaly detector in
// a fixed order and returns one verdict.
package cerberus

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Wikid82/warden/internal/logger"
	"github.com/Wikid82/warden/internal/metrics"
	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/services"
	"github.com/Wikid82/warden/internal/util"
)

const (
	ReasonIPBlocked              = "IP address blocked"
	ReasonInsufficientPermission = "Insufficient permissions"
)

// Gin context keys populated by the authentication middleware.
const (
	ActorIDKey = "userID"
	RoleKey    = "role"
)

// RequestContext carries the client facts extracted from the transport.
type RequestContext struct {
	IPAddress string
	UserAgent string
}

// ExtractClient returns the client address and user agent of r. The first
// X-Forwarded-For entry wins, then the socket address, then 0.0.0.0.
func ExtractClient(r *http.Request) RequestContext {
	rc := RequestContext{IPAddress: services.UnknownIP}
	if r == nil {
		return rc
	}
	rc.UserAgent = r.UserAgent()

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			rc.IPAddress = first
			return rc
		}
	}
	if r.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "" {
			rc.IPAddress = host
		}
	}
	return rc
}

type Ledger interface {
	LogAttempt(ctx context.Context, in services.AttemptInput) (string, error)
	AttachGeolocation(ctx context.Context, attemptID string, g *models.Geolocation) error
	UpdateMostRecentAttempt(ctx context.Context, actorID, ip string, success bool) error
	LogEvent(ctx context.Context, e *models.SecurityEvent) error
}

type BlockRegistry interface {
	IsBlocked(ctx context.Context, ip string) (bool, error)
}

type RuleEvaluator interface {
	Evaluate(ctx context.Context, rc services.RequestContext) (services.Decision, error)
}

type PermissionChecker interface {
	HasPermission(ctx context.Context, actorID, resource, action string) (bool, error)
}

type AnomalyDetector interface {
	Run(ctx context.Context, rc services.RequestContext)
}

// Deps are the collaborators of a Cerberus. Geo is optional.
type Deps struct {
	Ledger      Ledger
	Blocks      BlockRegistry
	Rules       RuleEvaluator
	Permissions PermissionChecker
	Anomalies   AnomalyDetector
	Geo         services.GeoLocator
}

// Cerberus validates access requests.
type Cerberus struct {
	ledger    Ledger
	blocks    BlockRegistry
	rules     RuleEvaluator
	perms     PermissionChecker
	anomalies AnomalyDetector
	geo       services.GeoLocator
}

func New(d Deps) *Cerberus {
	return &Cerberus{
		ledger:    d.Ledger,
		blocks:    d.Blocks,
		rules:     d.Rules,
		perms:     d.Permissions,
		anomalies: d.Anomalies,
		geo:       d.Geo,
	}
}

// ValidateAccess decides whether actorID may perform action on resource.
// Store failures are returned as errors and must be treated as a denial.
func (c *Cerberus) ValidateAccess(ctx context.Context, actorID, resource, action string, client RequestContext) (services.Decision, error) {
	if client.IPAddress == "" {
		client.IPAddress = services.UnknownIP
	}
	log := logger.WithFields(logrus.Fields{
		"actor":    util.SanitizeForLog(actorID),
		"ip":       util.SanitizeForLog(client.IPAddress),
		"resource": resource,
		"action":   action,
	})

	d, label, err := c.validate(ctx, actorID, resource, action, client)
	if err != nil {
		metrics.ObserveDecision(false, "error")
		log.WithError(err).Error("access validation failed")
		return services.Decision{}, err
	}
	metrics.ObserveDecision(d.Allowed, label)
	if d.Allowed {
		log.Debug("access granted")
	} else {
		log.WithField("reason", d.Reason).Info("access denied")
	}
	return d, nil
}

func (c *Cerberus) validate(ctx context.Context, actorID, resource, action string, client RequestContext) (services.Decision, string, error) {
	rc := services.RequestContext{
		ActorID:   actorID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Resource:  resource,
		Action:    action,
	}

	id, err := c.ledger.LogAttempt(ctx, services.AttemptInput{
		ActorID:   actorID,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		Resource:  resource,
		Action:    action,
	})
	if err != nil {
		return services.Decision{}, "", err
	}
	rc.AttemptID = id

	blocked, err := c.blocks.IsBlocked(ctx, rc.IPAddress)
	if err != nil {
		return services.Decision{}, "", err
	}
	if blocked {
		if err := c.logDenial(ctx, rc, models.SeverityHigh, models.BlockedAccessDetails{Resource: resource, Action: action}); err != nil {
			return services.Decision{}, "", err
		}
		return services.Decision{Allowed: false, Reason: ReasonIPBlocked}, "blocked_ip", nil
	}

	// Blocked addresses never reach the geolocation provider.
	rc.Geolocation = c.locate(ctx, rc.IPAddress)
	if err := c.ledger.AttachGeolocation(ctx, id, rc.Geolocation); err != nil {
		logger.WithFields(logrus.Fields{"attempt": id}).WithError(err).Warn("failed to record geolocation")
	}

	d, err := c.rules.Evaluate(ctx, rc)
	if err != nil {
		return services.Decision{}, "", err
	}
	if !d.Allowed {
		return d, "rule", nil
	}

	ok, err := c.perms.HasPermission(ctx, actorID, resource, action)
	if err != nil {
		return services.Decision{}, "", err
	}
	if !ok {
		if err := c.logDenial(ctx, rc, models.SeverityMedium, models.PermissionDeniedDetails{Resource: resource, Action: action}); err != nil {
			return services.Decision{}, "", err
		}
		return services.Decision{Allowed: false, Reason: ReasonInsufficientPermission}, "permission", nil
	}

	c.detectAnomalies(ctx, rc)

	if err := c.ledger.UpdateMostRecentAttempt(ctx, actorID, rc.IPAddress, true); err != nil {
		return services.Decision{}, "", err
	}
	return services.Decision{Allowed: true}, "allowed", nil
}

func (c *Cerberus) locate(ctx context.Context, ip string) *models.Geolocation {
	if c.geo == nil {
		return nil
	}
	g, err := c.geo.Lookup(ctx, ip)
	if err != nil {
		logger.WithFields(logrus.Fields{"ip": util.SanitizeForLog(ip)}).WithError(err).Debug("geolocation lookup failed")
		return nil
	}
	return g
}

func (c *Cerberus) logDenial(ctx context.Context, rc services.RequestContext, severity models.Severity, details models.EventDetails) error {
	e := &models.SecurityEvent{
		Type:      models.EventUnauthorizedAccess,
		Severity:  severity,
		ActorID:   rc.ActorID,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
	}
	if err := e.SetDetails(details); err != nil {
		return err
	}
	return c.ledger.LogEvent(ctx, e)
}

// detectAnomalies never fails the request.
func (c *Cerberus) detectAnomalies(ctx context.Context, rc services.RequestContext) {
	if c.anomalies == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{"actor": util.SanitizeForLog(rc.ActorID)}).
				Errorf("anomaly detection panicked: %v", r)
		}
	}()
	c.anomalies.Run(ctx, rc)
}

// Guard returns a gin middleware that authorizes the authenticated actor
// for resource and action. Requests without an actor are rejected with 401.
func (c *Cerberus) Guard(resource, action string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		actorID := ctx.GetString(ActorIDKey)
		if actorID == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		d, err := c.ValidateAccess(ctx.Request.Context(), actorID, resource, action, ExtractClient(ctx.Request))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "access check failed"})
			return
		}
		if !d.Allowed {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": d.Reason})
			return
		}
		ctx.Next()
	}
}
