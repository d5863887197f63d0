package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"microchat/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *int64 {
	val, ok := c.Get("userID")
	if !ok {
		return nil
	}
	switch userID := val.(type) {
	case int:
		if userID != 0 {
			value := int64(userID)
			return &value
		}
	case int64:
		if userID != 0 {
			return &userID
		}
	}
	return nil
}

// audit records a successful mutation. target is formatted like "chat:12".
func audit(c *gin.Context, emitter *telemetry.AuditEmitter, action, kind string, id any) {
	emitter.Emit(c.Request.Context(), "INFO", action, fmt.Sprintf("%s:%v", kind, id), requestIDFromContext(c), userIDFromContext(c))
}
