// Package middleware provides the HTTP middleware chain for the ledger API.
package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// MaxRequestIDLength caps request IDs taken from headers.
	MaxRequestIDLength = 128
	// MaxTenantIDLength caps tenant IDs taken from headers.
	MaxTenantIDLength = 64
)

// tenantIDPattern matches the canonical UUID form. Header-supplied tenant
// IDs that do not match are dropped rather than recorded on the span.
var tenantIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName identifies this service in exported traces.
	ServiceName string
	// Enabled controls whether tracing is active.
	Enabled bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "strata-backend",
		Enabled:     true,
	}
}

// Tracing returns OpenTelemetry tracing middleware with default configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig returns OpenTelemetry tracing middleware. It wraps
// otelgin, then tags the resulting span with tenant_id, user_id, and
// request_id extracted from claims and headers. Span names follow
// "METHOD route_pattern", e.g. "POST /api/v1/ledger/payments".
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	instrument := otelgin.Middleware(cfg.ServiceName)

	return func(c *gin.Context) {
		instrument(c)

		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			tagSpan(c, span)
		}
	}
}

// TracingAttributeInjector re-applies the identity attributes after the
// authentication middleware has populated the gin context. Place it after
// both Tracing and JWT in the chain.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			tagSpan(c, span)
		}
		c.Next()
	}
}

// SpanErrorMarker marks the active span with an error status when the
// response is 4xx or 5xx. Place it after the Tracing middleware.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}

		span.SetStatus(codes.Error, errorStatusMessage(status))
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
}

func errorStatusMessage(status int) string {
	switch {
	case status >= http.StatusInternalServerError:
		return "Internal Server Error"
	case status == http.StatusUnauthorized:
		return "Unauthorized"
	case status == http.StatusForbidden:
		return "Forbidden"
	case status == http.StatusNotFound:
		return "Not Found"
	default:
		return "Client Error"
	}
}

// tagSpan records the request identity attributes on the span. Empty
// values are skipped so spans never carry blank attributes.
func tagSpan(c *gin.Context, span trace.Span) {
	if requestID := getRequestID(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if tenantID := getTenantID(c); tenantID != "" {
		span.SetAttributes(attribute.String("tenant_id", tenantID))
	}
	if userID := getUserID(c); userID != "" {
		span.SetAttributes(attribute.String("user_id", userID))
	}
}

// getRequestID prefers the ID placed in the gin context by the RequestID
// middleware, falling back to the X-Request-ID header truncated to
// MaxRequestIDLength.
func getRequestID(c *gin.Context) string {
	if v, exists := c.Get("request_id"); exists {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}

	headerID := c.GetHeader("X-Request-ID")
	if len(headerID) > MaxRequestIDLength {
		return headerID[:MaxRequestIDLength]
	}
	return headerID
}

// getTenantID prefers the tenant resolved from the route by the tenant
// middleware. For unauthenticated requests the X-Tenant-ID header is
// accepted only when it is a well-formed UUID, so arbitrary header text
// never reaches the trace backend.
func getTenantID(c *gin.Context) string {
	if v, exists := c.Get(TenantIDKey); exists {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}

	headerTenantID := c.GetHeader("X-Tenant-ID")
	if headerTenantID != "" && isValidTenantID(headerTenantID) {
		return headerTenantID
	}
	return ""
}

// getUserID reads the user from verified JWT claims. There is no header
// fallback for user identity.
func getUserID(c *gin.Context) string {
	if v, exists := c.Get(JWTUserIDKey); exists {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return ""
}

func isValidTenantID(tenantID string) bool {
	if len(tenantID) > MaxTenantIDLength {
		return false
	}
	return tenantIDPattern.MatchString(tenantID)
}
