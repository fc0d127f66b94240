package middleware

import (
	"errors"
	"net/http"
	"strings"

	"eigentask/backend/internal/auth"

	"github.com/gin-gonic/gin"
)

const (
	userSubKey    = "user_sub"
	userClaimsKey = "user_claims"
)

// RequireUser authenticates the request from a Bearer access token or, when
// no Authorization header is sent, from the session cookie. The caller's
// subject and claims are stored on the context.
func RequireUser(authenticator *auth.Authenticator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := authenticate(c, authenticator, cookieName)
		if err != nil {
			abortUnauthenticated(c, err)
			return
		}
		setUser(c, claims)
		c.Next()
	}
}

// OptionalUser is RequireUser for endpoints that also serve anonymous callers.
func OptionalUser(authenticator *auth.Authenticator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := authenticate(c, authenticator, cookieName); err == nil {
			setUser(c, claims)
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, authenticator *auth.Authenticator, cookieName string) (*auth.Claims, error) {
	ctx := c.Request.Context()

	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return nil, errInvalidTokenFormat
		}
		return authenticator.Bearer(ctx, strings.TrimPrefix(authHeader, "Bearer "))
	}

	cookie, err := c.Cookie(cookieName)
	if err != nil || cookie == "" {
		return nil, errMissingCredentials
	}
	return authenticator.Cookie(ctx, cookie)
}

var (
	errMissingCredentials = errors.New("missing credentials")
	errInvalidTokenFormat = errors.New("invalid token format")
)

func abortUnauthenticated(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errMissingCredentials):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "missing_token",
			"message": "Not authenticated",
		})
	case errors.Is(err, errInvalidTokenFormat):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_token_format",
			"message": "Authorization header must use Bearer token",
		})
	case errors.Is(err, auth.ErrUnauthenticated):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_token",
			"message": "Token validation failed",
		})
	case errors.Is(err, auth.ErrProviderUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error":   "identity_provider_unavailable",
			"message": "Identity provider is unavailable",
		})
	default:
		c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "authentication_failed",
			"message": "Authentication could not be completed",
		})
	}
}

func setUser(c *gin.Context, claims *auth.Claims) {
	c.Set(userSubKey, claims.Subject)
	c.Set(userClaimsKey, claims)
}

// UserSub returns the authenticated subject, or "" for anonymous requests.
func UserSub(c *gin.Context) string {
	return c.GetString(userSubKey)
}

func UserClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(userClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
