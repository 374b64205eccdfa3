package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestUserIdentity_LiftsHeaderIntoContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(UserIdentity())
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, UserFrom(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderUserID, "  user123  ")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "user123" {
		t.Fatalf("got %d %q, want trimmed identity", w.Code, w.Body.String())
	}
}

func TestUserIdentity_IgnoresOversizedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(UserIdentity())
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, UserFrom(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderUserID, strings.Repeat("x", maxUserIDLen+1))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Body.String() != "" {
		t.Fatalf("oversized identity accepted: %q", w.Body.String())
	}
}

func TestRequireUser_RejectsAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(UserIdentity())
	r.POST("/buy", RequireUser(), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	// Anonymous: 401 with the standard envelope fields.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/buy", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"code":"unauthorized"`) {
		t.Fatalf("missing code in body: %s", w.Body.String())
	}

	// Identified: passes through.
	req := httptest.NewRequest(http.MethodPost, "/buy", nil)
	req.Header.Set(HeaderUserID, "user123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("identified status = %d, want 200", w.Code)
	}
}
