package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lenslabs/marketlens-go/internal/middleware"
)

// AdminKeyValidator checks a raw admin API key against the configured
// credential.
type AdminKeyValidator interface {
	ValidateAdminKey(key string) bool
}

// TokenIssuer mints signed JWTs with a role claim.
type TokenIssuer interface {
	GenerateToken(role string, duration time.Duration) (string, error)
}

type AuthHandler struct {
	keys   AdminKeyValidator
	tokens TokenIssuer
	expiry time.Duration
	logger *logrus.Logger
}

type TokenRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewAuthHandler(keys AdminKeyValidator, tokens TokenIssuer, expiry time.Duration, logger *logrus.Logger) *AuthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuthHandler{
		keys:   keys,
		tokens: tokens,
		expiry: expiry,
		logger: logger,
	}
}

// IssueToken exchanges the admin API key for a short-lived JWT carrying
// the admin role.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required"})
		return
	}

	if !h.keys.ValidateAdminKey(req.APIKey) {
		h.logger.WithField("remote", c.ClientIP()).Warn("Token request with invalid admin key")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin API key"})
		return
	}

	token, err := h.tokens.GenerateToken(middleware.RoleAdmin, h.expiry)
	if err != nil {
		middleware.RecordError(c, err, "token generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		Role:      middleware.RoleAdmin,
		ExpiresAt: time.Now().Add(h.expiry),
	})
}
