package handlers

import (
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/warden/internal/metrics"
	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/services"
	"github.com/Wikid82/warden/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// SecurityHandler exposes the ledger, block registry and rule table to
// administrators.
type SecurityHandler struct {
	ledger *services.LedgerService
	blocks *services.BlockService
	rules  *services.SecurityRuleService
}

func NewSecurityHandler(ledger *services.LedgerService, blocks *services.BlockService, rules *services.SecurityRuleService) *SecurityHandler {
	return &SecurityHandler{ledger: ledger, blocks: blocks, rules: rules}
}

func listLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

func (h *SecurityHandler) ListEvents(c *gin.Context) {
	f := store.EventFilter{
		Type:     models.EventType(c.Query("type")),
		Severity: models.Severity(c.Query("severity")),
		ActorID:  c.Query("actor_id"),
		Limit:    listLimit(c),
	}
	if v := c.Query("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resolved filter"})
			return
		}
		f.Resolved = &resolved
	}

	events, err := h.ledger.ListEvents(c.Request.Context(), f)
	if err != nil {
		logRequestError(c, err, "list security events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *SecurityHandler) ListAttempts(c *gin.Context) {
	f := store.AttemptFilter{
		ActorID:   c.Query("actor_id"),
		IPAddress: c.Query("ip"),
	}
	attempts, err := h.ledger.ListAttempts(c.Request.Context(), f, listLimit(c))
	if err != nil {
		logRequestError(c, err, "list access attempts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list attempts"})
		return
	}
	c.JSON(http.StatusOK, attempts)
}

func (h *SecurityHandler) ListBlocks(c *gin.Context) {
	blocks, err := h.blocks.List(c.Request.Context())
	if err != nil {
		logRequestError(c, err, "list blocks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list blocks"})
		return
	}
	c.JSON(http.StatusOK, blocks)
}

type blockRequest struct {
	IPAddress string `json:"ip_address" binding:"required"`
	Minutes   int    `json:"minutes"`
	Reason    string `json:"reason"`
	Permanent bool   `json:"permanent"`
}

func (h *SecurityHandler) CreateBlock(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ip := net.ParseIP(req.IPAddress)
	if ip == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid IP address"})
		return
	}
	if req.Reason == "" {
		req.Reason = "Manual block"
	}

	ctx := c.Request.Context()
	var err error
	if req.Permanent {
		err = h.blocks.BlockPermanently(ctx, ip.String(), req.Reason)
	} else {
		err = h.blocks.Block(ctx, ip.String(), req.Minutes, req.Reason)
	}
	if err != nil {
		if errors.Is(err, services.ErrInvalidBlockDuration) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logRequestError(c, err, "create block")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to block address"})
		return
	}
	metrics.IncIPBlock("manual")
	c.JSON(http.StatusCreated, gin.H{"message": "address blocked", "ip_address": ip.String()})
}

func (h *SecurityHandler) ListRules(c *gin.Context) {
	rules, err := h.rules.List(c.Request.Context())
	if err != nil {
		logRequestError(c, err, "list rules")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rules"})
		return
	}
	c.JSON(http.StatusOK, rules)
}

type ruleRequest struct {
	Name       string                 `json:"name" binding:"required"`
	Type       models.RuleType        `json:"type" binding:"required"`
	Enabled    *bool                  `json:"enabled"`
	Parameters map[string]interface{} `json:"parameters"`
	Actions    []models.RuleAction    `json:"actions"`
}

func (h *SecurityHandler) CreateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := &models.SecurityRule{Name: req.Name, Type: req.Type, Enabled: true}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.Parameters == nil {
		req.Parameters = map[string]interface{}{}
	}
	if err := rule.SetParameters(req.Parameters); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parameters"})
		return
	}
	if err := rule.SetActions(req.Actions...); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actions"})
		return
	}

	if err := h.rules.Create(c.Request.Context(), rule); err != nil {
		if isRuleValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logRequestError(c, err, "create rule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create rule"})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func isRuleValidationError(err error) bool {
	for _, target := range []error{
		services.ErrInvalidRuleName,
		services.ErrInvalidRuleAction,
		services.ErrInvalidCountryCode,
		services.ErrInvalidRuleParameters,
		services.ErrUnknownRuleType,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
