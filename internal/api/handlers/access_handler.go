package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/warden/internal/cerberus"
	"github.com/Wikid82/warden/internal/services"
)

// AccessValidator is the decision entry point used by AccessHandler.
type AccessValidator interface {
	ValidateAccess(ctx context.Context, actorID, resource, action string, client cerberus.RequestContext) (services.Decision, error)
}

// AccessHandler lets clients ask for a decision without performing the action.
type AccessHandler struct {
	validator AccessValidator
}

func NewAccessHandler(v AccessValidator) *AccessHandler {
	return &AccessHandler{validator: v}
}

type AccessCheckRequest struct {
	Resource string `json:"resource" binding:"required"`
	Action   string `json:"action" binding:"required"`
}

// Check returns the verdict for the authenticated actor. Denials are a
// normal 200 answer; only an engine failure is an error.
func (h *AccessHandler) Check(c *gin.Context) {
	var req AccessCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := h.validator.ValidateAccess(c.Request.Context(), c.GetString(cerberus.ActorIDKey), req.Resource, req.Action, cerberus.ExtractClient(c.Request))
	if err != nil {
		logRequestError(c, err, "access check")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "access check failed"})
		return
	}
	c.JSON(http.StatusOK, d)
}
