package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolware/course-admin-api/internal/models"
	appErrors "github.com/schoolware/course-admin-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
	err    error
}

func (s *stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	return s.claims, s.err
}

func performJWT(t *testing.T, validator tokenValidator, authHeader string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/courses", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	c.Request = req

	nextCalled := false
	JWT(validator)(c)
	if !c.IsAborted() {
		nextCalled = true
	}
	return w, nextCalled
}

func TestJWTMissingHeader(t *testing.T) {
	w, next := performJWT(t, &stubValidator{}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, next)
}

func TestJWTMalformedHeader(t *testing.T) {
	w, next := performJWT(t, &stubValidator{}, "Token abc")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, next)
}

func TestJWTInvalidToken(t *testing.T) {
	w, next := performJWT(t, &stubValidator{err: appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")}, "Bearer abc")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, next)
}

func TestJWTValidTokenAttachesClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/courses", nil)
	req.Header.Set("Authorization", "Bearer valid")
	c.Request = req

	JWT(&stubValidator{claims: &models.JWTClaims{UserID: "u1"}})(c)
	require.False(t, c.IsAborted())

	claims := Claims(c)
	require.NotNil(t, claims)
	assert.Equal(t, "u1", claims.UserID)
}
