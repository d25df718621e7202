package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/tenancy"
)

// MemberRoleKey is the gin context key holding the caller's resolved role
// within the management the request targets.
const MemberRoleKey = "member_role"

// Authorizer resolves what a user may do inside a management. Roles are
// not carried in the token; they are looked up per request so a revoked
// membership takes effect immediately.
type Authorizer interface {
	ResolveRole(ctx context.Context, tenantID, userID uuid.UUID) (tenancy.Role, error)
	Authorize(ctx context.Context, tenantID, userID uuid.UUID, perm tenancy.Permission) error
}

// PermissionConfig holds configuration for permission middleware
type PermissionConfig struct {
	// Logger for middleware logging
	Logger *zap.Logger
	// OnDenied is called when permission is denied (optional)
	OnDenied func(c *gin.Context, perm tenancy.Permission)
}

// RequirePermission creates middleware that requires a specific permission
// inside the management resolved by TenantMiddleware. It must run after
// both JWTAuthMiddleware and TenantMiddleware.
func RequirePermission(authz Authorizer, perm tenancy.Permission) gin.HandlerFunc {
	return RequirePermissionWithConfig(authz, perm, PermissionConfig{})
}

// RequirePermissionWithConfig creates permission middleware with custom config
func RequirePermissionWithConfig(authz Authorizer, perm tenancy.Permission, cfg PermissionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := uuid.Parse(GetJWTUserID(c))
		if err != nil {
			handlePermissionDenied(c, cfg, perm, "No authenticated user in context")
			return
		}

		tenantID, err := GetTenantUUID(c)
		if err != nil || tenantID == uuid.Nil {
			handlePermissionDenied(c, cfg, perm, "No management resolved for request")
			return
		}

		ctx := c.Request.Context()
		role, err := authz.ResolveRole(ctx, tenantID, userID)
		if err != nil {
			switch {
			case errors.Is(err, shared.ErrNotFound):
				respondTenantError(c, http.StatusNotFound, "NOT_FOUND", "Management not found")
			case errors.Is(err, shared.ErrForbidden):
				handlePermissionDenied(c, cfg, perm, "Caller is not a member of this management")
			default:
				if cfg.Logger != nil {
					cfg.Logger.Error("Role resolution failed",
						zap.String("tenant_id", tenantID.String()),
						zap.String("user_id", userID.String()),
						zap.Error(err))
				}
				respondTenantError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve membership")
			}
			return
		}

		if !role.HasPermission(perm) {
			handlePermissionDenied(c, cfg, perm, "Role lacks required permission")
			return
		}

		c.Set(MemberRoleKey, role)

		if cfg.Logger != nil {
			cfg.Logger.Debug("Permission check passed",
				zap.String("user_id", userID.String()),
				zap.String("tenant_id", tenantID.String()),
				zap.String("role", string(role)),
				zap.String("permission", string(perm)),
			)
		}

		c.Next()
	}
}

// RequireMembership creates middleware that only checks the caller belongs
// to the management, without demanding a specific permission. Used for
// read surfaces every member may see, such as their own unit's statement.
func RequireMembership(authz Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := uuid.Parse(GetJWTUserID(c))
		if err != nil {
			handlePermissionDenied(c, PermissionConfig{}, "", "No authenticated user in context")
			return
		}

		tenantID, err := GetTenantUUID(c)
		if err != nil || tenantID == uuid.Nil {
			handlePermissionDenied(c, PermissionConfig{}, "", "No management resolved for request")
			return
		}

		role, err := authz.ResolveRole(c.Request.Context(), tenantID, userID)
		if err != nil {
			switch {
			case errors.Is(err, shared.ErrNotFound):
				respondTenantError(c, http.StatusNotFound, "NOT_FOUND", "Management not found")
			case errors.Is(err, shared.ErrForbidden):
				handlePermissionDenied(c, PermissionConfig{}, "", "Caller is not a member of this management")
			default:
				respondTenantError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve membership")
			}
			return
		}

		c.Set(MemberRoleKey, role)
		c.Next()
	}
}

// GetMemberRole retrieves the caller's resolved role from gin.Context.
// Only set on routes behind RequirePermission or RequireMembership.
func GetMemberRole(c *gin.Context) (tenancy.Role, bool) {
	if v, exists := c.Get(MemberRoleKey); exists {
		if role, ok := v.(tenancy.Role); ok {
			return role, true
		}
	}
	return "", false
}

// handlePermissionDenied handles permission denied scenarios
func handlePermissionDenied(c *gin.Context, cfg PermissionConfig, perm tenancy.Permission, reason string) {
	if cfg.OnDenied != nil {
		cfg.OnDenied(c, perm)
		return
	}

	if cfg.Logger != nil {
		cfg.Logger.Warn("Permission denied",
			zap.String("reason", reason),
			zap.String("user_id", GetJWTUserID(c)),
			zap.String("required_permission", string(perm)),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
		)
	}

	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "ERR_FORBIDDEN",
			"message": "Access denied: insufficient permissions",
		},
	})
}
