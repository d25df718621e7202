package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/strata/backend/internal/domain/shared"
	"github.com/strata/backend/internal/domain/tenancy"
)

type stubAuthorizer struct {
	role tenancy.Role
	err  error
}

func (a *stubAuthorizer) ResolveRole(_ context.Context, _, _ uuid.UUID) (tenancy.Role, error) {
	return a.role, a.err
}

func (a *stubAuthorizer) Authorize(ctx context.Context, tenantID, userID uuid.UUID, perm tenancy.Permission) error {
	role, err := a.ResolveRole(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if !role.HasPermission(perm) {
		return shared.ErrForbidden
	}
	return nil
}

// seedIdentity simulates JWT and tenant middleware having already run.
func seedIdentity(userID, tenantID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(JWTUserIDKey, userID.String())
		c.Set(TenantIDKey, tenantID.String())
		c.Next()
	}
}

func newPermissionTestRouter(authz Authorizer, perm tenancy.Permission, seed gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	grp := router.Group("/test")
	if seed != nil {
		grp.Use(seed)
	}
	grp.Use(RequirePermission(authz, perm))
	grp.POST("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func TestRequirePermission_Allowed(t *testing.T) {
	authz := &stubAuthorizer{role: tenancy.RoleManager}
	router := newPermissionTestRouter(authz, tenancy.PermLedgerWrite, seedIdentity(uuid.New(), uuid.New()))

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequirePermission_RoleLacksPermission(t *testing.T) {
	authz := &stubAuthorizer{role: tenancy.RoleViewer}
	router := newPermissionTestRouter(authz, tenancy.PermLedgerWrite, seedIdentity(uuid.New(), uuid.New()))

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_FORBIDDEN")
}

func TestRequirePermission_NotAMember(t *testing.T) {
	authz := &stubAuthorizer{err: shared.ErrForbidden}
	router := newPermissionTestRouter(authz, tenancy.PermLedgerRead, seedIdentity(uuid.New(), uuid.New()))

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequirePermission_ManagementMissing(t *testing.T) {
	authz := &stubAuthorizer{err: shared.ErrNotFound}
	router := newPermissionTestRouter(authz, tenancy.PermLedgerRead, seedIdentity(uuid.New(), uuid.New()))

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequirePermission_NoAuthenticatedUser(t *testing.T) {
	authz := &stubAuthorizer{role: tenancy.RoleOwner}
	router := newPermissionTestRouter(authz, tenancy.PermLedgerRead, nil)

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequirePermission_SetsRoleInContext(t *testing.T) {
	authz := &stubAuthorizer{role: tenancy.RoleAdmin}

	var captured tenancy.Role
	var found bool

	router := gin.New()
	router.Use(seedIdentity(uuid.New(), uuid.New()))
	router.Use(RequirePermission(authz, tenancy.PermLedgerRead))
	router.GET("/test", func(c *gin.Context) {
		captured, found = GetMemberRole(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, found)
	assert.Equal(t, tenancy.RoleAdmin, captured)
}

func TestRequireMembership_ViewerAllowed(t *testing.T) {
	authz := &stubAuthorizer{role: tenancy.RoleViewer}

	router := gin.New()
	router.Use(seedIdentity(uuid.New(), uuid.New()))
	router.Use(RequireMembership(authz))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireMembership_NonMemberDenied(t *testing.T) {
	authz := &stubAuthorizer{err: shared.ErrForbidden}

	router := gin.New()
	router.Use(seedIdentity(uuid.New(), uuid.New()))
	router.Use(RequireMembership(authz))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetMemberRole_Unset(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	role, found := GetMemberRole(c)

	assert.False(t, found)
	assert.Empty(t, role)
}
