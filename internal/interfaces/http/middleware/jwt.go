package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tripdesk/backend/internal/infrastructure/auth"
	"github.com/tripdesk/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Context keys the auth middleware publishes for downstream handlers.
const (
	JWTClaimsKey   = "jwt_claims"
	JWTUserIDKey   = "jwt_user_id"
	JWTUsernameKey = "jwt_username"
	JWTRoleIDsKey  = "jwt_role_ids"
	JWTPermissions = "jwt_permissions"
	AuthHeaderKey  = "Authorization"
	BearerPrefix   = "Bearer "
)

// JWTMiddlewareConfig configures request authentication.
type JWTMiddlewareConfig struct {
	JWTService *auth.JWTService
	// TokenBlacklist rejects revoked tokens when set.
	TokenBlacklist auth.TokenBlacklist
	// Paths and prefixes served without authentication.
	SkipPaths        []string
	SkipPathPrefixes []string
	// OnError overrides the default 401 response.
	OnError func(c *gin.Context, err error)
	Logger  *zap.Logger
}

func DefaultJWTConfig(jwtService *auth.JWTService) JWTMiddlewareConfig {
	return JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/health",
			"/healthz",
			"/ready",
			"/metrics",
			"/api/v1/health",
			"/api/v1/auth/login",
			"/api/v1/auth/refresh",
		},
		SkipPathPrefixes: []string{
			"/swagger",
			"/api-docs",
		},
	}
}

// JWTAuthMiddleware authenticates requests with the default config.
func JWTAuthMiddleware(jwtService *auth.JWTService) gin.HandlerFunc {
	return JWTAuthMiddlewareWithConfig(DefaultJWTConfig(jwtService))
}

// JWTAuthMiddlewareWithConfig validates the bearer token, consults the
// blacklist, and publishes the claims into both the gin context and the
// request context logger.
func JWTAuthMiddlewareWithConfig(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath {
				c.Next()
				return
			}
		}
		for _, prefix := range cfg.SkipPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		tokenString, err := bearerToken(c)
		if err != nil {
			handleAuthError(c, cfg, err, "Missing or malformed authorization header")
			return
		}

		claims, err := cfg.JWTService.ValidateAccessToken(tokenString)
		if err != nil {
			handleAuthError(c, cfg, err, "Token validation failed")
			return
		}

		if cfg.TokenBlacklist != nil && !passesBlacklist(c, cfg, claims) {
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTUserIDKey, claims.UserID)
		c.Set(JWTUsernameKey, claims.Username)
		c.Set(JWTRoleIDsKey, claims.RoleIDs)
		c.Set(JWTPermissions, claims.Permissions)

		// Downstream log lines should carry the caller's identity
		ctx := c.Request.Context()
		log := logger.FromContext(ctx)
		ctx, _ = logger.WithUserID(ctx, log, claims.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader(AuthHeaderKey)
	if !strings.HasPrefix(authHeader, BearerPrefix) {
		return "", auth.ErrInvalidToken
	}
	tokenString := strings.TrimPrefix(authHeader, BearerPrefix)
	if tokenString == "" {
		return "", auth.ErrInvalidToken
	}
	return tokenString, nil
}

// passesBlacklist rejects tokens revoked individually (logout) or by a
// user-wide invalidation (password change, force logout). Lookup
// failures fail open so a Redis outage does not lock out the agency.
func passesBlacklist(c *gin.Context, cfg JWTMiddlewareConfig, claims *auth.Claims) bool {
	ctx := c.Request.Context()

	if claims.ID != "" {
		blacklisted, err := cfg.TokenBlacklist.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			if cfg.Logger != nil {
				cfg.Logger.Error("Failed to check token blacklist",
					zap.String("jti", claims.ID),
					zap.Error(err))
			}
		} else if blacklisted {
			handleAuthError(c, cfg, auth.ErrTokenBlacklisted, "Token has been revoked")
			return false
		}
	}

	if claims.UserID != "" {
		invalidated, err := cfg.TokenBlacklist.IsUserTokenInvalidated(ctx, claims.UserID, claims.GetIssuedAtTime())
		if err != nil {
			if cfg.Logger != nil {
				cfg.Logger.Error("Failed to check user token invalidation",
					zap.String("user_id", claims.UserID),
					zap.Error(err))
			}
		} else if invalidated {
			handleAuthError(c, cfg, auth.ErrTokenBlacklisted, "User session has been invalidated")
			return false
		}
	}

	return true
}

func handleAuthError(c *gin.Context, cfg JWTMiddlewareConfig, err error, message string) {
	if cfg.OnError != nil {
		cfg.OnError(c, err)
		return
	}

	if cfg.Logger != nil {
		cfg.Logger.Warn("JWT authentication failed",
			zap.Error(err),
			zap.String("message", message),
			zap.String("path", c.Request.URL.Path),
		)
	}

	errorCode := "UNAUTHORIZED"
	errorMessage := "Authentication required"
	switch err {
	case auth.ErrExpiredToken:
		errorCode = "TOKEN_EXPIRED"
		errorMessage = "Token has expired"
	case auth.ErrInvalidToken:
		errorCode = "INVALID_TOKEN"
		errorMessage = "Invalid token"
	case auth.ErrInvalidTokenType:
		errorCode = "INVALID_TOKEN_TYPE"
		errorMessage = "Invalid token type"
	case auth.ErrTokenNotYetValid:
		errorCode = "TOKEN_NOT_VALID"
		errorMessage = "Token is not yet valid"
	case auth.ErrTokenBlacklisted:
		errorCode = "TOKEN_REVOKED"
		errorMessage = "Token has been revoked"
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    errorCode,
			"message": errorMessage,
		},
	})
}

// RequirePermissions gates a route on the authenticated caller holding
// every listed permission, for example "invoice:void". It must sit
// behind the authentication middleware.
func RequirePermissions(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetJWTClaims(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Authentication required",
				},
			})
			return
		}

		if !claims.HasAllPermissions(permissions...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "Insufficient permissions",
				},
			})
			return
		}

		c.Next()
	}
}

// GetJWTClaims returns the authenticated claims, nil when absent.
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// MustGetJWTClaims panics when the route was not authenticated. Only
// for handlers that are always registered behind the auth middleware.
func MustGetJWTClaims(c *gin.Context) *auth.Claims {
	claims := GetJWTClaims(c)
	if claims == nil {
		panic("jwt claims not found in context")
	}
	return claims
}

func GetJWTUserID(c *gin.Context) string {
	if userID, exists := c.Get(JWTUserIDKey); exists {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return ""
}

func GetJWTUsername(c *gin.Context) string {
	if username, exists := c.Get(JWTUsernameKey); exists {
		if u, ok := username.(string); ok {
			return u
		}
	}
	return ""
}

func GetJWTRoleIDs(c *gin.Context) []string {
	if roleIDs, exists := c.Get(JWTRoleIDsKey); exists {
		if ids, ok := roleIDs.([]string); ok {
			return ids
		}
	}
	return nil
}

func GetJWTPermissions(c *gin.Context) []string {
	if permissions, exists := c.Get(JWTPermissions); exists {
		if perms, ok := permissions.([]string); ok {
			return perms
		}
	}
	return nil
}

// OptionalJWTAuthMiddleware extracts claims when a valid token is
// present but lets anonymous requests through.
func OptionalJWTAuthMiddleware(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c)
		if err != nil {
			c.Next()
			return
		}

		claims, err := jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			c.Next()
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTUserIDKey, claims.UserID)
		c.Set(JWTUsernameKey, claims.Username)
		c.Set(JWTRoleIDsKey, claims.RoleIDs)
		c.Set(JWTPermissions, claims.Permissions)

		c.Next()
	}
}
