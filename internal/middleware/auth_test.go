package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	a := NewAuthenticator("secret", "reelfuse")

	token, err := a.GenerateToken("studio-1", "exports", time.Hour)
	require.NoError(t, err)

	claims, err := a.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "studio-1", claims.Subject)
	assert.Equal(t, "exports", claims.Scope)
}

func TestParseRejects(t *testing.T) {
	a := NewAuthenticator("secret", "reelfuse")

	expired, err := a.GenerateToken("studio-1", "", -time.Minute)
	require.NoError(t, err)
	_, err = a.Parse(expired)
	assert.Error(t, err)

	other, err := NewAuthenticator("other", "reelfuse").GenerateToken("studio-1", "", time.Hour)
	require.NoError(t, err)
	_, err = a.Parse(other)
	assert.Error(t, err)

	wrongIssuer, err := NewAuthenticator("secret", "someone-else").GenerateToken("studio-1", "", time.Hour)
	require.NoError(t, err)
	_, err = a.Parse(wrongIssuer)
	assert.Error(t, err)
}

func TestJWTAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := NewAuthenticator("secret", "reelfuse")
	valid, err := a.GenerateToken("studio-1", "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name           string
		header         string
		expectedStatus int
	}{
		{name: "Missing authorization header", expectedStatus: http.StatusUnauthorized},
		{name: "Invalid token format", header: "InvalidToken", expectedStatus: http.StatusUnauthorized},
		{name: "Garbage token", header: "Bearer abc.def.ghi", expectedStatus: http.StatusUnauthorized},
		{name: "Valid token", header: "Bearer " + valid, expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(JWTAuth(a))
			router.GET("/test", func(c *gin.Context) {
				id, ok := GetClientID(c)
				assert.True(t, ok)
				assert.Equal(t, "studio-1", id)
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestJWTAuthDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(JWTAuth(NewAuthenticator("", "")))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
