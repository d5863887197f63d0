package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"microchat/internal/services"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("edit: %w", services.ErrAccessDenied), want: http.StatusForbidden},
		{err: fmt.Errorf("get: %w", services.ErrDoesNotExist), want: http.StatusNotFound},
		{err: services.ErrValidation, want: http.StatusBadRequest},
		{err: fmt.Errorf("upload: %w", services.ErrUnsupportedMIME), want: http.StatusBadRequest},
		{err: fmt.Errorf("add: %w", services.ErrTransient), want: http.StatusServiceUnavailable},
		{err: services.ErrUnresolvedRelation, want: http.StatusInternalServerError},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
