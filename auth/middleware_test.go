package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signTestToken(t *testing.T, secret string, userID uuid.UUID, expiresAt time.Time) string {
	t.Helper()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestValidateToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "middleware-test-secret")
	userID := uuid.New()

	t.Run("valid token round-trips the user id", func(t *testing.T) {
		token := signTestToken(t, "middleware-test-secret", userID, time.Now().Add(time.Hour))
		got, err := ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID, got)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := ValidateToken("")
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signTestToken(t, "middleware-test-secret", userID, time.Now().Add(-time.Minute))
		_, err := ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signTestToken(t, "some-other-secret", userID, time.Now().Add(time.Hour))
		_, err := ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("nil user id", func(t *testing.T) {
		token := signTestToken(t, "middleware-test-secret", uuid.Nil, time.Now().Add(time.Hour))
		_, err := ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestJWTAuthMiddleware(t *testing.T) {
	t.Setenv("JWT_SECRET", "middleware-test-secret")
	gin.SetMode(gin.TestMode)

	userID := uuid.New()
	r := gin.New()
	r.Use(JWTAuthMiddleware())
	r.GET("/protected", func(c *gin.Context) {
		id, _ := c.Get("userID")
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})

	do := func(authHeader string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("missing header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do("").Code)
	})

	t.Run("not a bearer token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do("Basic abc123").Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do("Bearer garbage").Code)
	})

	t.Run("valid token passes through", func(t *testing.T) {
		token := signTestToken(t, "middleware-test-secret", userID, time.Now().Add(time.Hour))
		w := do("Bearer " + token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), userID.String())
	})
}
