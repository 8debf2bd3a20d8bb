// Package handler holds the HTTP handlers of the API.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"phishguard/internal/identity"
	"phishguard/internal/middleware"
)

type AuthHandler interface {
	Register(c *gin.Context)
	Login(c *gin.Context)
	Anonymous(c *gin.Context)
	Me(c *gin.Context)
}

// Accounts is the identity service as used by the auth routes.
type Accounts interface {
	Register(ctx context.Context, email, password, displayName string) (*identity.Token, error)
	Login(ctx context.Context, email, password string) (*identity.Token, error)
	SignInAnonymously() (*identity.Token, error)
}

type authHandler struct {
	accounts Accounts
	logger   *zap.Logger
}

func NewAuthHandler(accounts Accounts, logger *zap.Logger) AuthHandler {
	return &authHandler{accounts: accounts, logger: logger}
}

type RegisterRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"displayName"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *authHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.accounts.Register(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUserAlreadyExists):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, identity.ErrWeakPassword), errors.Is(err, identity.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to register user", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register user"})
		}
		return
	}

	c.JSON(http.StatusCreated, token)
}

func (h *authHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		h.logger.Error("Failed to login user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to login"})
		return
	}

	c.JSON(http.StatusOK, token)
}

func (h *authHandler) Anonymous(c *gin.Context) {
	token, err := h.accounts.SignInAnonymously()
	if err != nil {
		h.logger.Error("Failed to sign in anonymously", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign in"})
		return
	}
	c.JSON(http.StatusOK, token)
}

// Me returns the caller, which is the unauthenticated identity without a
// token.
func (h *authHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.IdentityFrom(c))
}
