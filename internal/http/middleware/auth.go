// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides shared-secret authentication for operator surfaces.
// Two guards are defined here:
//
//   - CronAuth protects the externally-triggered endpoints (tick, cleanup).
//     The scheduled caller presents the shared secret as a bearer token.
//     An empty configured secret disables the check, which keeps local
//     development friction-free.
//
//   - AdminAuth protects the read-only admin API. The operator UI presents
//     the secret in the X-Admin-Secret header. Unlike CronAuth, an empty
//     configured secret locks the admin surface instead of opening it.
//
// Both guards compare secrets in constant time.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderAdminSecret carries the operator shared secret.
const HeaderAdminSecret = "X-Admin-Secret"

// HeaderWorkspaceHash carries the workspace fingerprint that scopes every
// tenant-facing request.
const HeaderWorkspaceHash = "X-Workspace-Hash"

// secretsEqual compares two secrets without leaking length-position timing.
func secretsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// CronAuth returns a middleware that admits requests carrying
// "Authorization: Bearer <secret>". Authenticated scheduled callers are
// marked for rate-limit bypass so a tick is never dropped at the edge.
func CronAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Set(ctxKeyRateBypass, true)
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || !secretsEqual(strings.TrimSpace(token), secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "unauthorized",
				"message":    "missing or invalid cron secret",
			})
			return
		}
		c.Set(ctxKeyRateBypass, true)
		c.Next()
	}
}

// AdminAuth returns a middleware that admits requests whose
// X-Admin-Secret header matches the configured secret. An unconfigured
// secret rejects everything.
func AdminAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" || !secretsEqual(c.GetHeader(HeaderAdminSecret), secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "unauthorized",
				"message":    "missing or invalid admin secret",
			})
			return
		}
		c.Next()
	}
}
