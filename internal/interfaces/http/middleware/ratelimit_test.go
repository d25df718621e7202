package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// hit issues a request with an optional client address and headers.
func hit(router *gin.Engine, method, path, addr string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if addr != "" {
		req.RemoteAddr = addr
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_Allow(t *testing.T) {
	t.Run("admits up to the limit", func(t *testing.T) {
		limiter := NewRateLimiter(5, time.Minute)
		for i := range 5 {
			assert.True(t, limiter.Allow("unit-owner-1"), "request %d should be allowed", i+1)
		}
	})

	t.Run("blocks past the limit", func(t *testing.T) {
		limiter := NewRateLimiter(3, time.Minute)
		for range 3 {
			assert.True(t, limiter.Allow("unit-owner-2"))
		}
		assert.False(t, limiter.Allow("unit-owner-2"))
	})

	t.Run("keys get independent buckets", func(t *testing.T) {
		limiter := NewRateLimiter(2, time.Minute)

		assert.True(t, limiter.Allow("mgmt-a"))
		assert.True(t, limiter.Allow("mgmt-a"))
		assert.False(t, limiter.Allow("mgmt-a"))

		assert.True(t, limiter.Allow("mgmt-b"))
		assert.True(t, limiter.Allow("mgmt-b"))
	})

	t.Run("bucket refills after the window", func(t *testing.T) {
		limiter := NewRateLimiter(2, 50*time.Millisecond)

		assert.True(t, limiter.Allow("unit-owner-3"))
		assert.True(t, limiter.Allow("unit-owner-3"))
		assert.False(t, limiter.Allow("unit-owner-3"))

		time.Sleep(60 * time.Millisecond)

		assert.True(t, limiter.Allow("unit-owner-3"))
	})
}

func TestRateLimiter_Remaining(t *testing.T) {
	limiter := NewRateLimiter(5, time.Minute)

	assert.Equal(t, 5, limiter.Remaining("fresh-caller"))

	limiter.Allow("fresh-caller")
	limiter.Allow("fresh-caller")

	assert.Equal(t, 3, limiter.Remaining("fresh-caller"))
}

func TestRateLimiter_ConcurrentCallers(t *testing.T) {
	limiter := NewRateLimiter(100, time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for range 150 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow("burst-caller") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, allowed)
}

func TestRateLimit(t *testing.T) {
	t.Run("passes requests under the limit", func(t *testing.T) {
		router := pingRouter(RateLimit(NewRateLimiter(3, time.Minute)))

		for range 3 {
			w := hit(router, "GET", "/ping", "", nil)
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("answers 429 over the limit", func(t *testing.T) {
		router := pingRouter(RateLimit(NewRateLimiter(2, time.Minute)))

		for range 2 {
			assert.Equal(t, http.StatusOK, hit(router, "GET", "/ping", "", nil).Code)
		}

		w := hit(router, "GET", "/ping", "", nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
	})

	t.Run("buckets include the tenant", func(t *testing.T) {
		router := pingRouter(RateLimit(NewRateLimiter(1, time.Minute)))
		first := map[string]string{"X-Tenant-ID": "mgmt-11"}
		second := map[string]string{"X-Tenant-ID": "mgmt-22"}

		assert.Equal(t, http.StatusOK, hit(router, "GET", "/ping", "", first).Code)
		assert.Equal(t, http.StatusTooManyRequests, hit(router, "GET", "/ping", "", first).Code)

		// another tenant is unaffected
		assert.Equal(t, http.StatusOK, hit(router, "GET", "/ping", "", second).Code)
	})
}

func TestRateLimitByKey(t *testing.T) {
	router := pingRouter(RateLimitByKey(NewRateLimiter(1, time.Minute), func(c *gin.Context) string {
		return c.GetHeader("X-User-ID")
	}))
	user := map[string]string{"X-User-ID": "user-31"}

	assert.Equal(t, http.StatusOK, hit(router, "GET", "/ping", "", user).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(router, "GET", "/ping", "", user).Code)
}

// loginRouter installs AuthRateLimit in front of a stub login endpoint.
func loginRouter(limiter *RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(AuthRateLimit(limiter))
	router.POST("/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	return router
}

func TestAuthRateLimit(t *testing.T) {
	clientAddr := "192.168.1.100:12345"

	t.Run("admits attempts within the budget", func(t *testing.T) {
		router := loginRouter(NewRateLimiter(5, time.Minute))

		for i := range 5 {
			w := hit(router, "POST", "/login", clientAddr, nil)
			assert.Equal(t, http.StatusOK, w.Code, "attempt %d should be allowed", i+1)
		}
	})

	t.Run("answers 429 with the auth error code", func(t *testing.T) {
		router := loginRouter(NewRateLimiter(3, time.Minute))

		for range 3 {
			assert.Equal(t, http.StatusOK, hit(router, "POST", "/login", clientAddr, nil).Code)
		}

		w := hit(router, "POST", "/login", clientAddr, nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "AUTH_RATE_LIMIT_EXCEEDED")
		assert.Contains(t, w.Body.String(), "Too many authentication attempts")
	})

	t.Run("exposes limit headers", func(t *testing.T) {
		router := loginRouter(NewRateLimiter(5, time.Minute))

		w := hit(router, "POST", "/login", clientAddr, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("blocked attempts carry Retry-After", func(t *testing.T) {
		router := loginRouter(NewRateLimiter(1, time.Minute))

		hit(router, "POST", "/login", clientAddr, nil)
		w := hit(router, "POST", "/login", clientAddr, nil)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "60", w.Header().Get("Retry-After"))
	})

	t.Run("buckets are per client IP", func(t *testing.T) {
		router := loginRouter(NewRateLimiter(2, time.Minute))

		for range 2 {
			assert.Equal(t, http.StatusOK, hit(router, "POST", "/login", "192.168.1.1:12345", nil).Code)
		}
		assert.Equal(t, http.StatusTooManyRequests, hit(router, "POST", "/login", "192.168.1.1:12345", nil).Code)

		assert.Equal(t, http.StatusOK, hit(router, "POST", "/login", "192.168.1.2:12345", nil).Code)
	})

	t.Run("auth bucket is isolated from the global limiter", func(t *testing.T) {
		router := gin.New()

		authGroup := router.Group("/auth")
		authGroup.Use(AuthRateLimit(NewRateLimiter(2, time.Minute)))
		authGroup.POST("/login", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true})
		})

		router.Use(RateLimit(NewRateLimiter(100, time.Minute)))
		router.GET("/api/v1/units", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"data": []string{}})
		})

		for range 2 {
			assert.Equal(t, http.StatusOK, hit(router, "POST", "/auth/login", clientAddr, nil).Code)
		}
		assert.Equal(t, http.StatusTooManyRequests, hit(router, "POST", "/auth/login", clientAddr, nil).Code)

		// same client still has budget on the API limiter
		assert.Equal(t, http.StatusOK, hit(router, "GET", "/api/v1/units", clientAddr, nil).Code)
	})
}
