package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/warden/internal/cerberus"
	"github.com/Wikid82/warden/internal/services"
)

type AuthHandler struct {
	auth  *services.AuthService
	perms *services.PermissionService
}

func NewAuthHandler(auth *services.AuthService, perms *services.PermissionService) *AuthHandler {
	return &AuthHandler{auth: auth, perms: perms}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client := cerberus.ExtractClient(c.Request)
	token, user, err := h.auth.Login(c.Request.Context(), services.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrIPBlocked):
			c.JSON(http.StatusForbidden, gin.H{"error": cerberus.ReasonIPBlocked})
		case errors.Is(err, services.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		default:
			logRequestError(c, err, "login failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// Me describes the authenticated actor and the capabilities of their role.
func (h *AuthHandler) Me(c *gin.Context) {
	role := c.GetString(cerberus.RoleKey)
	perms, err := h.perms.Permissions(role)
	if err != nil {
		logRequestError(c, err, "list permissions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list permissions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":     c.GetString(cerberus.ActorIDKey),
		"role":        role,
		"permissions": perms,
	})
}
