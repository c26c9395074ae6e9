package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/lenslabs/marketlens-go/internal/config"
)

// AdminMiddleware guards the admin surface. Requests authenticate with the
// raw admin API key in X-Admin-Key, or with a bearer JWT previously issued
// in exchange for that key.
type AdminMiddleware struct {
	apiKey     string
	apiKeyHash string
	auth       *AuthMiddleware
	logger     *logrus.Logger
}

// NewAdminMiddleware builds the admin gate from security config. When
// neither a key nor a key hash is configured the gate fails closed and every
// admin request is rejected.
func NewAdminMiddleware(cfg config.SecurityConfig, auth *AuthMiddleware, logger *logrus.Logger) *AdminMiddleware {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if cfg.AdminAPIKey == "" && cfg.AdminAPIKeyHash == "" {
		logger.Warn("No admin API key configured, admin endpoints will reject all requests")
	}

	return &AdminMiddleware{
		apiKey:     cfg.AdminAPIKey,
		apiKeyHash: cfg.AdminAPIKeyHash,
		auth:       auth,
		logger:     logger,
	}
}

// RequireAdmin validates admin credentials on each request.
func (am *AdminMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader("X-Admin-Key"); key != "" {
			if am.ValidateAdminKey(key) {
				c.Next()
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin API key"})
			c.Abort()
			return
		}

		if am.auth != nil {
			if authHeader := c.GetHeader("Authorization"); authHeader != "" {
				tokenParts := strings.Split(authHeader, " ")
				if len(tokenParts) == 2 && strings.EqualFold(tokenParts[0], "bearer") {
					claims, err := am.auth.ValidateToken(tokenParts[1])
					if err == nil && claims.Role == RoleAdmin {
						c.Set("role", claims.Role)
						c.Next()
						return
					}
				}
			}
		}

		c.JSON(http.StatusUnauthorized, gin.H{"error": "admin credentials required"})
		c.Abort()
	}
}

// ValidateAdminKey checks a presented key against the configured credential.
// A configured bcrypt hash wins over a plaintext key.
func (am *AdminMiddleware) ValidateAdminKey(key string) bool {
	if key == "" {
		return false
	}
	if am.apiKeyHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(am.apiKeyHash), []byte(key)) == nil
	}
	if am.apiKey != "" {
		return subtle.ConstantTimeCompare([]byte(am.apiKey), []byte(key)) == 1
	}
	return false
}
