package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"microchat/internal/models"
	"microchat/internal/repositories"
	"microchat/internal/services"
	"microchat/internal/telemetry"
)

// ChatHandler serves chats, their messages and their media.
type ChatHandler struct {
	resolver
	chats *services.Chats
	audit *telemetry.AuditEmitter
	log   *slog.Logger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(storage repositories.Storage, chats *services.Chats, audit *telemetry.AuditEmitter, log *slog.Logger) *ChatHandler {
	return &ChatHandler{
		resolver: resolver{entities: storage.Entities, relations: storage.Relations},
		chats:    chats,
		audit:    audit,
		log:      log,
	}
}

type messageRequest struct {
	Text        *string  `json:"text"`
	Attachments []string `json:"attachments"`
	ReplyTo     *int     `json:"reply_to"`
}

func (r messageRequest) draft() models.MessageDraft {
	return models.MessageDraft{Text: r.Text, AttachmentHashes: r.Attachments, ReplyTo: r.ReplyTo}
}

// ListChats returns the relations of the authenticated actor.
func (h *ChatHandler) ListChats(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	offset, count, err := paging(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	chats, err := h.chats.ListChats(c.Request.Context(), actor, offset, count)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": lo.Map(chats, func(chat models.Chat, _ int) chatView { return viewChat(chat) })})
}

// OpenDialog creates or returns the dialog with another actor.
func (h *ChatHandler) OpenDialog(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	dialog, err := h.chats.OpenDialog(c.Request.Context(), actor, req.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	audit(c, h.audit, "dialog.open", "user", req.UserID)
	c.JSON(http.StatusOK, viewChat(dialog))
}

// scope resolves the actor and the :chat_id relation.
func (h *ChatHandler) scope(c *gin.Context) (models.Actor, models.Chat, bool) {
	actor, ok := h.actor(c)
	if !ok {
		return models.Actor{}, nil, false
	}
	chat, err := h.chat(c, actor)
	if err != nil {
		respondError(c, h.log, err)
		return models.Actor{}, nil, false
	}
	return actor, chat, true
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	actor, chat, ok := h.scope(c)
	if !ok {
		return
	}
	offset, count, err := paging(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	msgs, err := h.chats.ListMessages(c.Request.Context(), actor, chat, offset, count)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *ChatHandler) GetMessage(c *gin.Context) {
	actor, chat, ok := h.scope(c)
	if !ok {
		return
	}
	no, err := ordinal(c, "no")
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	msg, err := h.chats.GetMessage(c.Request.Context(), actor, chat, no)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	actor, chat, ok := h.scope(c)
	if !ok {
		return
	}

	msg, err := h.chats.AddMessage(c.Request.Context(), actor, chat, req.draft())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	audit(c, h.audit, "message.add", "chat", chat.RelatedID())
	c.JSON(http.StatusCreated, msg)
}

// EditMessage replaces the text. Attachments are replaced only when the
// attachments field is present; an empty list removes them.
func (h *ChatHandler) EditMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	actor, chat, ok := h.scope(c)
	if !ok {
		return
	}
	no, err := ordinal(c, "no")
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	msg, err := h.chats.EditMessage(c.Request.Context(), actor, chat, no, req.draft())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	audit(c, h.audit, "message.edit", "chat", chat.RelatedID())
	c.JSON(http.StatusOK, msg)
}

func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	actor, chat, ok := h.scope(c)
	if !ok {
		return
	}
	no, err := ordinal(c, "no")
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if err := h.chats.RemoveMessage(c.Request.Context(), actor, chat, no); err != nil {
		respondError(c, h.log, err)
		return
	}
	audit(c, h.audit, "message.delete", "chat", chat.RelatedID())
	c.Status(http.StatusNoContent)
}

// EditPermissions sets what the peer of a dialog may do in it. Flags set to
// false are written too.
func (h *ChatHandler) EditPermissions(c *gin.Context) {
	var update models.PermissionsUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, err.Error())
		return
	}
	actor, chat, ok := h.scope(c)
	if !ok {
		return
	}

	perms, err := h.chats.EditDialogPermissions(c.Request.Context(), actor, chat, update)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	audit(c, h.audit, "dialog.permissions", "user", chat.RelatedID())
	c.JSON(http.StatusOK, perms)
}

func mediaKind(c *gin.Context) (models.MediaKind, error) {
	kind, err := models.ParseMediaKind(c.Param("media_type"))
	if err != nil {
		return "", invalidParam(err)
	}
	return kind, nil
}

func (h *ChatHandler) ListMedia(c *gin.Context) {
	actor, chat, ok := h.scope(c)
	if !ok {
		return
	}
	kind, err := mediaKind(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	offset, count, err := paging(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	attachments, err := h.chats.ListMedia(c.Request.Context(), actor, chat, kind, offset, count)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": attachments})
}

func (h *ChatHandler) GetMedia(c *gin.Context) {
	actor, chat, ok := h.scope(c)
	if !ok {
		return
	}
	kind, err := mediaKind(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	no, err := ordinal(c, "no")
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	attachment, err := h.chats.GetMedia(c.Request.Context(), actor, chat, kind, no)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, attachment)
}

func (h *ChatHandler) DeleteMedia(c *gin.Context) {
	actor, chat, ok := h.scope(c)
	if !ok {
		return
	}
	kind, err := mediaKind(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	no, err := ordinal(c, "no")
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if err := h.chats.RemoveMedia(c.Request.Context(), actor, chat, kind, no); err != nil {
		respondError(c, h.log, err)
		return
	}
	audit(c, h.audit, "media.delete", "chat", chat.RelatedID())
	c.Status(http.StatusNoContent)
}
