package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"microchat/internal/models"
	"microchat/internal/repositories"
	"microchat/internal/services"
	"microchat/internal/telemetry"
)

// ConferenceHandler manages conferences and their members.
type ConferenceHandler struct {
	resolver
	conferences *services.Conferences
	audit       *telemetry.AuditEmitter
	log         *slog.Logger
}

// NewConferenceHandler builds a ConferenceHandler.
func NewConferenceHandler(storage repositories.Storage, conferences *services.Conferences, audit *telemetry.AuditEmitter, log *slog.Logger) *ConferenceHandler {
	return &ConferenceHandler{
		resolver:    resolver{entities: storage.Entities, relations: storage.Relations},
		conferences: conferences,
		audit:       audit,
		log:         log,
	}
}

func (h *ConferenceHandler) CreateConference(c *gin.Context) {
	var req struct {
		Title              string              `json:"title" binding:"required"`
		Alias              *string             `json:"alias"`
		Description        *string             `json:"description"`
		Private            bool                `json:"private"`
		DefaultPermissions *models.Permissions `json:"default_permissions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	member, err := h.conferences.CreateConference(c.Request.Context(), actor, services.NewConference{
		Title:       req.Title,
		Alias:       req.Alias,
		Description: req.Description,
		Private:     req.Private,
		Defaults:    req.DefaultPermissions,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	audit(c, h.audit, "conference.create", "conference", member.Conference.ID)
	c.JSON(http.StatusCreated, member)
}

// EditConference applies the fields present in the body.
func (h *ConferenceHandler) EditConference(c *gin.Context) {
	var req struct {
		Title              *string                  `json:"title"`
		Alias              *string                  `json:"alias"`
		Description        *string                  `json:"description"`
		Private            *bool                    `json:"private"`
		DefaultPermissions models.PermissionsUpdate `json:"default_permissions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	actor, conference, ok := h.scope(c)
	if !ok {
		return
	}

	updated, err := h.conferences.EditConference(c.Request.Context(), actor, conference, services.ConferenceUpdate{
		Title:       req.Title,
		Alias:       req.Alias,
		Description: req.Description,
		Private:     req.Private,
		Defaults:    req.DefaultPermissions,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	audit(c, h.audit, "conference.edit", "conference", conference.ID)
	c.JSON(http.StatusOK, updated)
}

func (h *ConferenceHandler) DeleteConference(c *gin.Context) {
	actor, conference, ok := h.scope(c)
	if !ok {
		return
	}
	if err := h.conferences.DeleteConference(c.Request.Context(), actor, conference); err != nil {
		respondError(c, h.log, err)
		return
	}
	audit(c, h.audit, "conference.delete", "conference", conference.ID)
	c.Status(http.StatusNoContent)
}

// scope resolves the actor and the :conference_id conference.
func (h *ConferenceHandler) scope(c *gin.Context) (models.Actor, models.Conference, bool) {
	actor, ok := h.actor(c)
	if !ok {
		return models.Actor{}, models.Conference{}, false
	}
	id, err := h.entityID(c, c.Param("conference_id"))
	if err != nil {
		respondError(c, h.log, err)
		return models.Actor{}, models.Conference{}, false
	}
	conference, err := h.conferences.GetConference(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return models.Actor{}, models.Conference{}, false
	}
	return actor, conference, true
}

// selector reads :member, either "me" or a member ordinal.
func selector(c *gin.Context, actor models.Actor) (services.MemberSelector, error) {
	if c.Param("member") == "me" {
		return services.ByActor(actor), nil
	}
	no, err := ordinal(c, "member")
	if err != nil {
		return services.MemberSelector{}, err
	}
	return services.ByNo(no), nil
}

func (h *ConferenceHandler) ListMembers(c *gin.Context) {
	actor, conference, ok := h.scope(c)
	if !ok {
		return
	}
	offset, count, err := paging(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	members, err := h.conferences.ListMembers(c.Request.Context(), actor, conference, offset, count)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *ConferenceHandler) GetMember(c *gin.Context) {
	actor, conference, ok := h.scope(c)
	if !ok {
		return
	}
	sel, err := selector(c, actor)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	member, err := h.conferences.GetMember(c.Request.Context(), actor, conference, sel)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *ConferenceHandler) AddMember(c *gin.Context) {
	var req struct {
		ActorID int64 `json:"actor_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	actor, conference, ok := h.scope(c)
	if !ok {
		return
	}
	invitee, err := h.entities.GetActor(c.Request.Context(), req.ActorID)
	if err != nil {
		respondError(c, h.log, notFound("actor", req.ActorID, err))
		return
	}

	member, err := h.conferences.AddMember(c.Request.Context(), actor, conference, invitee)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	audit(c, h.audit, "member.add", "conference", conference.ID)
	c.JSON(http.StatusOK, member)
}

func (h *ConferenceHandler) RemoveMember(c *gin.Context) {
	actor, conference, ok := h.scope(c)
	if !ok {
		return
	}
	sel, err := selector(c, actor)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if err := h.conferences.RemoveMember(c.Request.Context(), actor, conference, sel); err != nil {
		respondError(c, h.log, err)
		return
	}
	audit(c, h.audit, "member.remove", "conference", conference.ID)
	c.Status(http.StatusNoContent)
}

func (h *ConferenceHandler) GetMemberPermissions(c *gin.Context) {
	actor, conference, ok := h.scope(c)
	if !ok {
		return
	}
	sel, err := selector(c, actor)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	perms, err := h.conferences.GetMemberPermissions(c.Request.Context(), actor, conference, sel)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, perms)
}

// EditMemberPermissions applies the flags present in the body. Flags set to
// false are written too.
func (h *ConferenceHandler) EditMemberPermissions(c *gin.Context) {
	var update models.PermissionsUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, err.Error())
		return
	}
	if update.Empty() {
		badRequest(c, "no permission given")
		return
	}
	actor, conference, ok := h.scope(c)
	if !ok {
		return
	}
	sel, err := selector(c, actor)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	perms, err := h.conferences.EditMemberPermissions(c.Request.Context(), actor, conference, sel, update)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	audit(c, h.audit, "member.permissions", "conference", conference.ID)
	c.JSON(http.StatusOK, perms)
}
