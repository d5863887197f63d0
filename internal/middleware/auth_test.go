package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), AuthMiddleware(secret))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt64("userID"), "request_id": c.GetString("request_id")})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	valid, err := GenerateToken(secret, 42, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken(secret, 42, -time.Hour)
	require.NoError(t, err)
	foreign, err := GenerateToken([]byte("other"), 42, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
		header string
		status int
	}{
		{name: "bearer header", target: "/me", header: "Bearer " + valid, status: http.StatusOK},
		{name: "query token", target: "/me?token=" + valid, status: http.StatusOK},
		{name: "missing", target: "/me", status: http.StatusUnauthorized},
		{name: "wrong scheme", target: "/me", header: "Basic " + valid, status: http.StatusUnauthorized},
		{name: "expired", target: "/me", header: "Bearer " + expired, status: http.StatusUnauthorized},
		{name: "foreign signature", target: "/me", header: "Bearer " + foreign, status: http.StatusUnauthorized},
	}

	router := setupRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
			if tt.status == http.StatusOK {
				assert.Contains(t, rec.Body.String(), `"user_id":42`)
			}
		})
	}
}

func TestRequestID_KeepsCallerValue(t *testing.T) {
	token, err := GenerateToken(secret, 1, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(RequestIDHeader, "req-9")
	rec := httptest.NewRecorder()
	setupRouter().ServeHTTP(rec, req)

	assert.Equal(t, "req-9", rec.Header().Get(RequestIDHeader))
	assert.Contains(t, rec.Body.String(), `"request_id":"req-9"`)
}

func TestEmptySecretIsRejected(t *testing.T) {
	_, err := GenerateToken(nil, 1, time.Hour)
	assert.ErrorIs(t, err, ErrEmptySecret)

	claims := &Claims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte{})
	if err != nil {
		forged = "a.b.c"
	}
	_, err = ValidateToken([]byte{}, forged)
	assert.ErrorIs(t, err, ErrEmptySecret)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(nil))
	r.GET("/me", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
