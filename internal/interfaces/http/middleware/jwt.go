package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/infrastructure/auth"
	"github.com/loyalty/backend/internal/infrastructure/logger"
	"github.com/loyalty/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Context keys and headers used by the auth middleware
const (
	JWTClaimsKey         = "jwt_claims"
	TenantIDKey          = "tenant_id"
	AuthHeaderKey        = "Authorization"
	BearerPrefix         = "Bearer "
	TenantHeaderKey      = "X-Tenant-ID"
	IdempotencyKeyHeader = "Idempotency-Key"
)

// TokenValidator validates bearer tokens
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// AuthConfig holds configuration for the tenant auth middleware
type AuthConfig struct {
	Validator TokenValidator
	// Required rejects requests without a bearer token. When false the
	// X-Tenant-ID header is accepted instead (local development).
	Required  bool
	SkipPaths []string
	Logger    *zap.Logger
}

// TenantAuth resolves the merchant a request acts for, from a bearer token
// or, when tokens are optional, from the X-Tenant-ID header.
func TenantAuth(cfg AuthConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		if slices.Contains(cfg.SkipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}

		var tenantID uuid.UUID
		authHeader := c.GetHeader(AuthHeaderKey)
		switch {
		case authHeader != "":
			claims, err := validateBearer(cfg.Validator, authHeader)
			if err != nil {
				log.Warn("JWT authentication failed",
					zap.Error(err),
					zap.String("path", c.Request.URL.Path),
				)
				abortUnauthorized(c, authMessage(err))
				return
			}
			tenantID, _ = claims.GetTenantUUID()
			c.Set(JWTClaimsKey, claims)

		case !cfg.Required:
			id, err := uuid.Parse(c.GetHeader(TenantHeaderKey))
			if err != nil || id == uuid.Nil {
				abortUnauthorized(c, "Missing or invalid "+TenantHeaderKey+" header")
				return
			}
			tenantID = id

		default:
			abortUnauthorized(c, "Missing authorization header")
			return
		}

		c.Set(TenantIDKey, tenantID)
		c.Request = c.Request.WithContext(logger.WithTenantID(c.Request.Context(), tenantID.String()))
		c.Next()
	}
}

// GetTenantID returns the merchant resolved by TenantAuth
func GetTenantID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(TenantIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func validateBearer(validator TokenValidator, header string) (*auth.Claims, error) {
	if validator == nil {
		return nil, auth.ErrMissingSecret
	}
	token, ok := strings.CutPrefix(header, BearerPrefix)
	if !ok || token == "" {
		return nil, auth.ErrInvalidToken
	}
	return validator.ValidateToken(token)
}

func authMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token has expired"
	case errors.Is(err, auth.ErrMissingTenantID):
		return "Token does not identify a merchant"
	default:
		return "Authentication required"
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dto.NewErrorResponseWithRequestID(dto.ErrCodeUnauthorized, message, GetRequestID(c)))
}
