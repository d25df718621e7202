package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strata/backend/internal/infrastructure/logger"
)

// Tenant context keys
const (
	TenantIDKey    = "tenant_id"
	TenantNameKey  = "tenant_name"
	TenantParamKey = "managementId"
)

// TenantInfo holds the resolved tenant information
type TenantInfo struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// TenantValidator checks that a management exists and is active before
// requests are allowed to act on it.
type TenantValidator interface {
	ValidateTenant(ctx context.Context, tenantID uuid.UUID) (*TenantInfo, error)
}

// TenantMiddlewareConfig holds configuration for tenant middleware
type TenantMiddlewareConfig struct {
	// ParamName is the route parameter carrying the management ID
	ParamName string
	// Validator optionally checks that the management exists and is active
	Validator TenantValidator
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultTenantConfig returns default tenant middleware configuration
func DefaultTenantConfig() TenantMiddlewareConfig {
	return TenantMiddlewareConfig{
		ParamName: TenantParamKey,
		Validator: nil,
		Logger:    nil,
	}
}

// TenantMiddleware resolves the management a request targets from the route.
// Every tenant-scoped route carries the management ID as a path parameter;
// the middleware parses it, optionally validates it, and stores it in both
// the gin context and the request context for the service layer.
func TenantMiddleware() gin.HandlerFunc {
	return TenantMiddlewareWithConfig(DefaultTenantConfig())
}

// TenantMiddlewareWithConfig returns tenant middleware with custom configuration
func TenantMiddlewareWithConfig(cfg TenantMiddlewareConfig) gin.HandlerFunc {
	paramName := cfg.ParamName
	if paramName == "" {
		paramName = TenantParamKey
	}

	return func(c *gin.Context) {
		raw := c.Param(paramName)
		if raw == "" {
			respondTenantError(c, http.StatusBadRequest, "INVALID_INPUT", "Management ID is required")
			return
		}

		tenantID, err := uuid.Parse(raw)
		if err != nil {
			respondTenantError(c, http.StatusBadRequest, "INVALID_INPUT", "Invalid management ID format")
			return
		}

		var tenantInfo *TenantInfo
		if cfg.Validator != nil {
			tenantInfo, err = cfg.Validator.ValidateTenant(c.Request.Context(), tenantID)
			if err != nil {
				log := cfg.Logger
				if log == nil {
					log = logger.FromContext(c.Request.Context())
				}
				log.Warn("Tenant validation failed",
					zap.String("tenant_id", tenantID.String()),
					zap.Error(err),
				)
				respondTenantError(c, http.StatusNotFound, "NOT_FOUND", "Management not found or inactive")
				return
			}
		}

		c.Set(TenantIDKey, tenantID.String())
		if tenantInfo != nil {
			c.Set(TenantNameKey, tenantInfo.Name)
		}

		ctx := c.Request.Context()
		log := logger.FromContext(ctx)
		ctx, _ = logger.WithTenantID(ctx, log, tenantID.String())
		c.Request = c.Request.WithContext(ctx)

		if cfg.Logger != nil {
			cfg.Logger.Debug("Tenant resolved",
				zap.String("tenant_id", tenantID.String()),
			)
		}

		c.Next()
	}
}

// respondTenantError sends an error response and aborts the request
func respondTenantError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// GetTenantID retrieves the tenant ID from gin.Context
func GetTenantID(c *gin.Context) string {
	if tenantID, exists := c.Get(TenantIDKey); exists {
		if tid, ok := tenantID.(string); ok {
			return tid
		}
	}
	return ""
}

// GetTenantUUID retrieves the tenant ID as UUID from gin.Context
func GetTenantUUID(c *gin.Context) (uuid.UUID, error) {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(tenantID)
}

// GetTenantName retrieves the resolved management name from gin.Context
func GetTenantName(c *gin.Context) string {
	if name, exists := c.Get(TenantNameKey); exists {
		if n, ok := name.(string); ok {
			return n
		}
	}
	return ""
}

// MustGetTenantUUID retrieves the tenant ID as UUID or panics if not found.
// Use only on routes behind TenantMiddleware.
func MustGetTenantUUID(c *gin.Context) uuid.UUID {
	tenantUUID, err := GetTenantUUID(c)
	if err != nil || tenantUUID == uuid.Nil {
		panic("valid tenant_id not found in context")
	}
	return tenantUUID
}
