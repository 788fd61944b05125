package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"luxe-escrow-server/config"
	"luxe-escrow-server/types"
)

// Context keys set by SupabaseAuth.
const (
	ContextUserID      = "user_id"
	ContextUserEmail   = "user_email"
	ContextServiceRole = "service_role"
	ContextAuthEnabled = "auth_enabled"
)

const serviceRole = "service_role"

// Claims represents the JWT claims (using shared types)
type Claims = types.SupabaseClaims

// SupabaseAuth verifies Supabase access tokens (HS256, signed with the project JWT secret).
// The service role key is accepted as a bearer for server-to-server calls. When no secret
// is configured every request passes through unauthenticated.
func SupabaseAuth(cfg config.SupabaseConfig) gin.HandlerFunc {
	secret := []byte(cfg.JWTSecret)
	issuer := cfg.JWTIssuer()

	return func(c *gin.Context) {
		if !cfg.AuthEnabled() {
			c.Set(ContextAuthEnabled, false)
			c.Next()
			return
		}
		c.Set(ContextAuthEnabled, true)

		tokenString := bearerToken(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		if cfg.ServiceRoleKey != "" && tokenString == cfg.ServiceRoleKey {
			c.Set(ContextServiceRole, true)
			c.Next()
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
		if err != nil || !token.Valid {
			log.Printf("🔒 Rejected token on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		if claims.Role == serviceRole {
			c.Set(ContextServiceRole, true)
			c.Next()
			return
		}
		if claims.Subject == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has no subject"})
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// bearerToken reads the Authorization header, falling back to ?token= for websocket
// upgrades where browsers cannot set headers.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if websocketUpgrade(c.Request) {
		return c.Query("token")
	}
	return ""
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// CallerMatches reports whether the authenticated caller may act as userID. Service-role
// callers and unauthenticated deployments may act as anyone.
func CallerMatches(c *gin.Context, userID string) bool {
	if !c.GetBool(ContextAuthEnabled) || c.GetBool(ContextServiceRole) {
		return true
	}
	return userID != "" && c.GetString(ContextUserID) == userID
}
