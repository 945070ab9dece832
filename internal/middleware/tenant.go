package middleware

import (
	"net/http"
	"strings"

	"storefront-service/internal/multitenant"
	"storefront-service/pkg/jwtutil"
	"storefront-service/pkg/logger"
	"storefront-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TenantMiddleware resolves the tenant for each request from the bearer
// token's tenant_slug claim and scopes the tenant storage context to the
// request.
//
// The decision table, in order:
//   - public path prefix: delegate untouched
//   - no Authorization header: delegate with no tenant context; this
//     middleware does routing, not access control
//   - malformed or expired token: 401, tenant context never set
//   - valid token without tenant_slug: delegate with no tenant context so
//     shared endpoints keep working
//   - valid token with tenant_slug: set the tenant context for exactly the
//     lifetime of the delegated call
//
// The context is attached to a derived request and the original request is
// restored in a defer, so the tenant context is gone on every exit path,
// including panics unwinding through the handler.
func TenantMiddleware(publicPaths []string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			if isPublicPath(c.Request().URL.Path, publicPaths) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				// Authorization is enforced downstream; without a
				// credential there is simply no tenant to route to.
				return next(c)
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid Authorization header format")
				prometheus.RecordAuthError("invalid_auth_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			claims, err := jwtutil.ValidateToken(parts[1])
			if err != nil {
				if jwtutil.IsExpired(err) {
					log.Warn("Expired JWT token", zap.Error(err))
					prometheus.RecordAuthError("expired_token")
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "expired token"})
				}
				log.Warn("Invalid JWT token", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			// Store user info in context for later use
			c.Set("user_id", claims.UserID)
			c.Set("email", claims.Email)
			c.Set("user_role", claims.Role)

			if claims.TenantSlug == "" {
				// No tenant claim is not an error: shared-category
				// endpoints must keep working for such tokens.
				log.Debug("Token carries no tenant_slug claim")
				return next(c)
			}

			storageID := multitenant.Resolve(claims.TenantSlug)
			c.Set("tenant_slug", claims.TenantSlug)

			req := c.Request()
			scoped := req.WithContext(multitenant.WithStorageID(req.Context(), storageID))
			c.SetRequest(scoped)
			defer c.SetRequest(req)

			log.Debug("Request authenticated with tenant context",
				zap.String("tenant_slug", claims.TenantSlug),
				zap.String("storage_id", storageID))

			return next(c)
		}
	}
}

func isPublicPath(path string, publicPaths []string) bool {
	for _, prefix := range publicPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// TenantSlugFromContext retrieves the tenant slug set by TenantMiddleware.
func TenantSlugFromContext(c echo.Context) (string, bool) {
	slug, ok := c.Get("tenant_slug").(string)
	return slug, ok && slug != ""
}
