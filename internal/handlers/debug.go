package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"microchat/internal/middleware"
	"microchat/internal/models"
	"microchat/internal/repositories"
	"microchat/internal/telemetry"
)

const debugTokenTTL = 24 * time.Hour

// RegisterDebugRoutes wires debug-only endpoints. Actors are normally
// provisioned by an external identity service; /debug/actors stands in for
// it during development.
func RegisterDebugRoutes(router gin.IRouter, entities repositories.EntityRepository, emitter *telemetry.AuditEmitter, secret []byte, enabled bool) {
	if !enabled {
		return
	}

	router.POST("/debug/actors", func(c *gin.Context) {
		var req struct {
			Name  string           `json:"name" binding:"required"`
			Kind  models.ActorKind `json:"kind"`
			Alias *string          `json:"alias"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Kind == "" {
			req.Kind = models.ActorUser
		}
		if req.Kind != models.ActorUser && req.Kind != models.ActorBot {
			c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be user or bot"})
			return
		}

		actor, err := entities.CreateActor(c.Request.Context(), models.Actor{
			Kind:               req.Kind,
			Alias:              req.Alias,
			Name:               req.Name,
			DefaultPermissions: models.MemberPermissions(),
		})
		if err != nil {
			if errors.Is(err, repositories.ErrAliasTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": "alias already taken"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create actor"})
			return
		}
		token, err := middleware.GenerateToken(secret, actor.ID, debugTokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sign token"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"actor": actor, "token": token})
	})

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit.test", "debug:0", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
