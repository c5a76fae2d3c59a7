package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/learninghub/core/identity"
	"github.com/trezcool/learninghub/services/ratelimit"
)

// roleMiddleware only lets principals holding one of roles through; denied is returned otherwise.
func roleMiddleware(denied error, roles ...int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p, err := getContextPrincipal(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context principal")
			}
			if p.HasAnyRole(roles...) {
				return next(ctx)
			}
			return denied
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(errAdminOnly, identity.RoleAdmin)
}

func staffMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(errStaffOnly, identity.RoleAdmin, identity.RoleTeacher)
}

// rateLimitMiddleware limits requests per client IP. A nil limiter lets everything through.
func rateLimitMiddleware(limiter ratelimit.Limiter, scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if limiter == nil {
			return next
		}
		return func(ctx echo.Context) error {
			if !limiter.Allow(ctx.Request().Context(), scope+":"+ctx.RealIP()) {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
