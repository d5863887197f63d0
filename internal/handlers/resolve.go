package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"microchat/internal/models"
	"microchat/internal/repositories"
	"microchat/internal/services"
)

const (
	defaultCount = 50
	maxCount     = 200
)

// resolver turns request identity and path parameters into domain values.
type resolver struct {
	entities  repositories.EntityRepository
	relations repositories.RelationRepository
}

// actor loads the authenticated actor. It aborts the request on failure.
func (r resolver) actor(c *gin.Context) (models.Actor, bool) {
	userID := userIDFromContext(c)
	if userID == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return models.Actor{}, false
	}
	actor, err := r.entities.GetActor(c.Request.Context(), *userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		}
		return models.Actor{}, false
	}
	return actor, true
}

// entityID accepts a numeric id or an "@alias".
func (r resolver) entityID(c *gin.Context, raw string) (int64, error) {
	if alias, ok := strings.CutPrefix(raw, "@"); ok {
		entity, err := r.entities.GetByAlias(c.Request.Context(), alias)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return 0, fmt.Errorf("alias %q: %w", alias, services.ErrDoesNotExist)
			}
			return 0, err
		}
		return entity.ID, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", services.ErrValidation, raw)
	}
	return id, nil
}

// chat resolves the :chat_id relation of actor.
func (r resolver) chat(c *gin.Context, actor models.Actor) (models.Chat, error) {
	id, err := r.entityID(c, c.Param("chat_id"))
	if err != nil {
		return nil, err
	}
	chat, err := r.relations.GetRelation(c.Request.Context(), actor, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("chat %d: %w", id, services.ErrDoesNotExist)
		}
		return nil, err
	}
	return chat, nil
}

// paging reads offset and count. A negative offset counts from the end.
func paging(c *gin.Context) (offset, count int, err error) {
	offset, count = 0, defaultCount
	if raw := c.Query("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil {
			return 0, 0, fmt.Errorf("%w: invalid offset %q", services.ErrValidation, raw)
		}
	}
	if raw := c.Query("count"); raw != "" {
		if count, err = strconv.Atoi(raw); err != nil {
			return 0, 0, fmt.Errorf("%w: invalid count %q", services.ErrValidation, raw)
		}
	}
	return offset, min(count, maxCount), nil
}

func ordinal(c *gin.Context, name string) (int, error) {
	no, err := strconv.Atoi(c.Param(name))
	if err != nil || no < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", services.ErrValidation, name, c.Param(name))
	}
	return no, nil
}

// chatView is the wire form of a relation in listings.
type chatView struct {
	Type        models.ChatKind    `json:"type"`
	RelatedID   int64              `json:"related_id"`
	Permissions models.Permissions `json:"permissions"`
	Relation    models.Chat        `json:"relation"`
}

func viewChat(chat models.Chat) chatView {
	return chatView{
		Type:        chat.Kind(),
		RelatedID:   chat.RelatedID(),
		Permissions: chat.EffectivePermissions(),
		Relation:    chat,
	}
}
