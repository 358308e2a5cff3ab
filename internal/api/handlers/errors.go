package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/Wikid82/warden/internal/api/middleware"
)

// logRequestError records err on the request logger; clients only get a
// generic message.
func logRequestError(c *gin.Context, err error, msg string) {
	middleware.GetRequestLogger(c).WithError(err).Error(msg)
}
