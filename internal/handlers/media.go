package handlers

import (
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"microchat/internal/models"
	"microchat/internal/repositories"
	"microchat/internal/services"
	"microchat/internal/telemetry"
)

// MediaHandler uploads and downloads media content.
type MediaHandler struct {
	resolver
	files *services.Files
	audit *telemetry.AuditEmitter
	log   *slog.Logger
}

func NewMediaHandler(storage repositories.Storage, files *services.Files, audit *telemetry.AuditEmitter, log *slog.Logger) *MediaHandler {
	return &MediaHandler{
		resolver: resolver{entities: storage.Entities, relations: storage.Relations},
		files:    files,
		audit:    audit,
		log:      log,
	}
}

// Upload expects a multipart "file" field, an optional "preview" JPEG and
// an optional "kind" forcing the media kind.
func (h *MediaHandler) Upload(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "missing file")
		return
	}

	upload := services.Upload{Name: header.Filename}
	if raw := c.PostForm("kind"); raw != "" {
		if upload.Kind, err = models.ParseMediaKind(raw); err != nil {
			respondError(c, h.log, invalidParam(err))
			return
		}
	}

	body, err := header.Open()
	if err != nil {
		respondError(c, h.log, fmt.Errorf("open upload: %w", err))
		return
	}
	defer body.Close()
	upload.Body = body

	if previewHeader, err := c.FormFile("preview"); err == nil {
		var preview multipart.File
		if preview, err = previewHeader.Open(); err != nil {
			respondError(c, h.log, fmt.Errorf("open preview: %w", err))
			return
		}
		defer preview.Close()
		upload.Preview = preview
	}

	media, err := h.files.Upload(c.Request.Context(), actor, upload)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	audit(c, h.audit, "media.upload", "media", media.Hash)
	c.JSON(http.StatusCreated, media)
}

func (h *MediaHandler) Download(c *gin.Context) {
	if _, ok := h.actor(c); !ok {
		return
	}
	media, body, err := h.files.Open(c.Request.Context(), c.Param("hash"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, media.Size, media.MIME(), body, map[string]string{
		"Content-Disposition": fmt.Sprintf("inline; filename=%q", media.Name),
		"Cache-Control":       "private, max-age=31536000, immutable",
	})
}
