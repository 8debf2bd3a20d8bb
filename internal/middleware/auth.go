package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"phishguard/internal/identity"
	"phishguard/internal/localstore"
	"phishguard/internal/validation"
)

const (
	identityKey = "identity"
	localKey    = "local"

	// DeviceHeader names the device whose on-device storage a request uses.
	DeviceHeader  = "X-Device-ID"
	DefaultDevice = "default"
)

// TokenParser turns a bearer token into an identity.
type TokenParser interface {
	Parse(token string) (identity.Identity, error)
}

// Authenticate resolves the caller. Requests without an Authorization header
// continue as the unauthenticated identity; a malformed or invalid token is
// rejected. Websocket clients, which cannot set headers, may pass the token
// as the access_token query parameter.
func Authenticate(tokens TokenParser, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if t := c.Query("access_token"); t != "" {
				authHeader = "Bearer " + t
			}
		}
		if authHeader == "" {
			c.Set(identityKey, identity.Unauthenticated())
			c.Next()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer <token>"})
			return
		}

		id, err := tokens.Parse(parts[1])
		if err != nil {
			if errors.Is(err, identity.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
				return
			}
			logger.Warn("Invalid JWT token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireIdentity rejects unauthenticated callers.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IdentityFrom(c).Authenticated {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Sign in required"})
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the caller set by Authenticate.
func IdentityFrom(c *gin.Context) identity.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(identity.Identity); ok {
			return id
		}
	}
	return identity.Unauthenticated()
}

// Device scopes on-device storage to the X-Device-ID of the request.
func Device(base localstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		device := c.GetHeader(DeviceHeader)
		if device == "" {
			device = DefaultDevice
		}
		if err := validation.Var(device, "device_id"); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid " + DeviceHeader})
			return
		}
		c.Set(localKey, localstore.Namespace(base, device))
		c.Next()
	}
}

// LocalFrom returns the device store set by Device.
func LocalFrom(c *gin.Context) localstore.Store {
	return c.MustGet(localKey).(localstore.Store)
}
