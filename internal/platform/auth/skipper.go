package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists route paths that bypass authentication: health checks,
// metrics, and the credential endpoints that issue tokens.
var publicPaths = map[string]bool{
	"/health":                  true,
	"/health/db":               true,
	"/metrics":                 true,
	"/api/auth/register/":      true,
	"/api/auth/login/":         true,
	"/api/auth/token/refresh/": true,
}

// AuthSkipper returns true for requests whose matched route should skip
// authentication. Use it as JWTConfig.Skipper.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given route path is public.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
