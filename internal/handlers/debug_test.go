package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"microchat/internal/middleware"
	"microchat/internal/mocks"
	"microchat/internal/repositories/memstore"
	"microchat/internal/telemetry"
)

func TestDebugRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := []byte("debug-secret")
	store := memstore.New(nil)
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(logsForTest(), publisher, "audit.chat", "microchat", "test")
	r := gin.New()
	RegisterDebugRoutes(r, store, emitter, secret, true)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/debug/actors", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"name":"alice","alias":"alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Actor struct {
			ID int64 `json:"id"`
		} `json:"actor"`
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	claims, err := middleware.ValidateToken(secret, created.Token)
	require.NoError(t, err)
	assert.Equal(t, created.Actor.ID, claims.UserID)

	assert.Equal(t, http.StatusConflict, post(`{"name":"other","alias":"alice"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"name":"x","kind":"robot"}`).Code)

	publisher.On("Publish", mock.Anything, "audit.chat", mock.AnythingOfType("telemetry.AuditEnvelope"), mock.Anything).Return(nil).Once()
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	publisher.AssertExpectations(t)
}

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, memstore.New(nil), nil, nil, false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/actors", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
