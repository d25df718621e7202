package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata/backend/internal/domain/shared"
)

type stubTenantValidator struct {
	info *TenantInfo
	err  error
}

func (v *stubTenantValidator) ValidateTenant(_ context.Context, _ uuid.UUID) (*TenantInfo, error) {
	return v.info, v.err
}

func newTenantTestRouter(cfg TenantMiddlewareConfig, handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	grp := router.Group("/api/v1/managements/:managementId")
	grp.Use(TenantMiddlewareWithConfig(cfg))
	grp.GET("/units", handler)
	return router
}

func TestTenantMiddleware_ValidManagementID(t *testing.T) {
	tenantID := uuid.New()

	var captured uuid.UUID
	router := newTenantTestRouter(DefaultTenantConfig(), func(c *gin.Context) {
		captured = MustGetTenantUUID(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/managements/"+tenantID.String()+"/units", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tenantID, captured)
}

func TestTenantMiddleware_MalformedManagementID(t *testing.T) {
	router := newTenantTestRouter(DefaultTenantConfig(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/managements/not-a-uuid/units", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
}

func TestTenantMiddleware_ValidatorRejects(t *testing.T) {
	cfg := DefaultTenantConfig()
	cfg.Validator = &stubTenantValidator{err: shared.ErrNotFound}

	router := newTenantTestRouter(cfg, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/managements/"+uuid.NewString()+"/units", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestTenantMiddleware_ValidatorAccepts(t *testing.T) {
	tenantID := uuid.New()
	cfg := DefaultTenantConfig()
	cfg.Validator = &stubTenantValidator{info: &TenantInfo{ID: tenantID, Name: "Maple Court"}}

	var capturedName string
	router := newTenantTestRouter(cfg, func(c *gin.Context) {
		capturedName = GetTenantName(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/managements/"+tenantID.String()+"/units", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Maple Court", capturedName)
}

func TestGetTenantUUID_Unset(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	tenantUUID, err := GetTenantUUID(c)

	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, tenantUUID)
}

func TestMustGetTenantUUID_Panics(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Panics(t, func() {
		MustGetTenantUUID(c)
	})
}

func TestGetTenantID_Set(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	tenantID := uuid.NewString()
	c.Set(TenantIDKey, tenantID)

	assert.Equal(t, tenantID, GetTenantID(c))
}
