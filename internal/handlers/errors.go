package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"microchat/internal/repositories"
	"microchat/internal/services"
)

// statusFor maps service errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, services.ErrDoesNotExist):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Internal failures are
// logged and hidden from the client.
func respondError(c *gin.Context, log *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("Request failed", "route", c.FullPath(), "request_id", requestIDFromContext(c), "error", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func invalidParam(err error) error {
	return fmt.Errorf("%w: %w", services.ErrValidation, err)
}

// notFound reports a missing repository row as a client error.
func notFound(kind string, id any, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("%s %v: %w", kind, id, services.ErrDoesNotExist)
	}
	return err
}
