package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serveRoute(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func textHandler(status int, body string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(status, body)
	}
}

// mountGroup registers a single group under /api/v1 directly, without
// going through Router.
func mountGroup(engine *gin.Engine, g *DomainGroup) {
	g.RegisterRoutes(engine.Group("/api/v1"))
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))

	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterRegister(t *testing.T) {
	r := NewRouter(gin.New())

	r.Register(NewDomainGroup("test", "/test"))

	assert.Len(t, r.registrars, 1)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v1"))

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", textHandler(http.StatusOK, "pong"))

	r.Register(group)
	r.Setup()

	w := serveRoute(engine, "GET", "/api/v1/test/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup(t *testing.T) {
	t.Run("creates group with name and prefix", func(t *testing.T) {
		g := NewDomainGroup("tenancy", "/managements")
		assert.Equal(t, "tenancy", g.Name())
		assert.Equal(t, "/managements", g.Prefix())
	})

	t.Run("registers each verb", func(t *testing.T) {
		for _, tt := range []struct {
			method string
			mount  func(g *DomainGroup)
			path   string
			status int
		}{
			{"GET", func(g *DomainGroup) { g.GET("/items", textHandler(http.StatusOK, "items")) }, "/items", http.StatusOK},
			{"POST", func(g *DomainGroup) { g.POST("/items", textHandler(http.StatusCreated, "created")) }, "/items", http.StatusCreated},
			{"PUT", func(g *DomainGroup) { g.PUT("/items/:id", textHandler(http.StatusOK, "updated")) }, "/items/123", http.StatusOK},
			{"PATCH", func(g *DomainGroup) { g.PATCH("/items/:id", textHandler(http.StatusOK, "patched")) }, "/items/123", http.StatusOK},
			{"DELETE", func(g *DomainGroup) { g.DELETE("/items/:id", textHandler(http.StatusNoContent, "")) }, "/items/123", http.StatusNoContent},
		} {
			t.Run(tt.method, func(t *testing.T) {
				engine := gin.New()
				g := NewDomainGroup("test", "/test")
				tt.mount(g)
				mountGroup(engine, g)

				w := serveRoute(engine, tt.method, "/api/v1/test"+tt.path)
				assert.Equal(t, tt.status, w.Code)
			})
		}
	})

	t.Run("applies middleware", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("test", "/test")

		g.Use(func(c *gin.Context) {
			c.Header("X-Test-Middleware", "applied")
			c.Next()
		})
		g.GET("/items", textHandler(http.StatusOK, "ok"))
		mountGroup(engine, g)

		w := serveRoute(engine, "GET", "/api/v1/test/items")
		assert.Equal(t, "applied", w.Header().Get("X-Test-Middleware"))
	})

	t.Run("creates subgroups", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("tenancy", "/managements")

		g.Group("units", "/units").GET("", textHandler(http.StatusOK, "units list"))
		g.Group("invites", "/invites").GET("", textHandler(http.StatusOK, "invites list"))

		mountGroup(engine, g)

		w := serveRoute(engine, "GET", "/api/v1/managements/units")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "units list", w.Body.String())

		w = serveRoute(engine, "GET", "/api/v1/managements/invites")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "invites list", w.Body.String())
	})
}

func TestMultipleDomainGroups(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	mgmts := NewDomainGroup("tenancy", "/managements")
	mgmts.GET("/units", textHandler(http.StatusOK, "units"))

	recon := NewDomainGroup("reconcile", "/reconcile")
	recon.GET("/alerts", textHandler(http.StatusOK, "alerts"))

	r.Register(mgmts).Register(recon)
	r.Setup()

	w := serveRoute(engine, "GET", "/api/v1/managements/units")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "units", w.Body.String())

	w = serveRoute(engine, "GET", "/api/v1/reconcile/alerts")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alerts", w.Body.String())
}

func TestChainedMethodCalls(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	g := NewDomainGroup("test", "/test")
	g.GET("/a", textHandler(http.StatusOK, "a")).
		POST("/b", textHandler(http.StatusOK, "b")).
		PUT("/c", textHandler(http.StatusOK, "c"))

	r.Register(g).Setup()

	for _, tt := range []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/test/a"},
		{"POST", "/api/v1/test/b"},
		{"PUT", "/api/v1/test/c"},
	} {
		w := serveRoute(engine, tt.method, tt.path)
		assert.Equal(t, http.StatusOK, w.Code, "route %s %s", tt.method, tt.path)
	}
}
