// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the buyer-identity middleware. The service trusts an
// upstream gateway to authenticate users and forward the identity in the
// X-User-ID header; this middleware lifts it into the Gin context so
// handlers and the rate limiter key on it uniformly.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ctxKeyUserID is the Gin context key under which the user ID is stored.
	ctxKeyUserID = "userID"
	// HeaderUserID carries the authenticated identity from the gateway.
	HeaderUserID = "X-User-ID"
	// maxUserIDLen bounds the accepted identity length.
	maxUserIDLen = 64
)

// UserIdentity copies the X-User-ID header into the Gin context when
// present. It never rejects: routes that can serve anonymous traffic stay
// open, and RequireUser guards the ones that cannot.
func UserIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(HeaderUserID)); id != "" && len(id) <= maxUserIDLen {
			c.Set(ctxKeyUserID, id)
		}
		c.Next()
	}
}

// RequireUser aborts with 401 when no user identity reached the context.
// Purchase and order routes use it; a buyer without an identity cannot be
// held to the one-per-user rule.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserFrom(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "unauthorized",
				"message":    "user identity required",
			})
			return
		}
		c.Next()
	}
}

// UserFrom returns the request's user ID, or "" when anonymous.
func UserFrom(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
