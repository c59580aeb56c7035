package http

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"chatwarden/internal/core/services"
	apperrors "chatwarden/pkg/errors"
	"chatwarden/pkg/validation"

	"github.com/gin-gonic/gin"
)

// AuthHandler issues admin API tokens against the operator credentials from
// the config file.
type AuthHandler struct {
	authService services.AuthService
	username    string
	password    string
	tokenTTL    time.Duration
}

func NewAuthHandler(authService services.AuthService, username, password string, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		username:    username,
		password:    password,
		tokenTTL:    tokenTTL,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/login", h.Login)
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if err := validation.ValidatePassword(req.Password); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	if h.password == "" {
		c.Error(apperrors.NewForbiddenError("admin login is disabled: no password configured"))
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.password)) == 1
	if !userOK || !passOK {
		c.Error(apperrors.NewUnauthorizedError("invalid credentials"))
		return
	}

	accessToken, err := h.authService.GenerateToken(req.Username)
	if err != nil {
		c.Error(apperrors.NewInternalError("failed to generate token"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username":     req.Username,
		"access_token": accessToken,
		"expires_in":   int(h.tokenTTL / time.Second),
	})
}
