package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/warden/internal/cerberus"
)

// PresenceEntry is a check-in or check-out recorded by an employee.
type PresenceEntry struct {
	ActorID   string    `json:"actor_id"`
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PresenceHandler is a small in-memory presence log. It exists to put real
// routes behind the access guard.
type PresenceHandler struct {
	mu      sync.RWMutex
	entries []PresenceEntry
	now     func() time.Time
}

func NewPresenceHandler() *PresenceHandler {
	return &PresenceHandler{now: time.Now}
}

type presenceRequest struct {
	Status string `json:"status" binding:"required,oneof=in out"`
	Note   string `json:"note" binding:"max=200"`
}

func (h *PresenceHandler) List(c *gin.Context) {
	h.mu.RLock()
	out := make([]PresenceEntry, len(h.entries))
	copy(out, h.entries)
	h.mu.RUnlock()
	c.JSON(http.StatusOK, out)
}

func (h *PresenceHandler) Record(c *gin.Context) {
	var req presenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e := PresenceEntry{
		ActorID:   c.GetString(cerberus.ActorIDKey),
		Status:    req.Status,
		Note:      req.Note,
		Timestamp: h.now().UTC(),
	}
	h.mu.Lock()
	h.entries = append(h.entries, e)
	h.mu.Unlock()
	c.JSON(http.StatusCreated, e)
}
