package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/learninghub/core/identity"
	"github.com/trezcool/learninghub/core/user"
)

const (
	contextPrincipalKey = "principal"
	contextClaimsKey    = "claims"
	contextTokenKey     = "token"
	bearerPrefix        = "bearer "
)

// bearerToken extracts the token of an `Authorization: Bearer <token>` header.
func bearerToken(ctx echo.Context) (string, bool) {
	header := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderAuthorization))
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// authMiddleware verifies the bearer token and resolves the local user behind it.
func authMiddleware(verifier identity.Verifier, svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			token, ok := bearerToken(ctx)
			if !ok {
				return errNoToken
			}

			reqCtx := ctx.Request().Context()
			claims, err := verifier.Verify(reqCtx, token)
			if err != nil {
				return errInvalidToken
			}

			p, err := svc.ResolvePrincipal(reqCtx, claims)
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return errUserNotInDB
				}
				return errors.Wrap(err, "resolving principal")
			}

			ctx.Set(contextPrincipalKey, p)
			ctx.Set(contextClaimsKey, claims)
			ctx.Set(contextTokenKey, token)
			return next(ctx)
		}
	}
}

func getContextPrincipal(ctx echo.Context) (identity.Principal, error) {
	if p, ok := ctx.Get(contextPrincipalKey).(identity.Principal); ok {
		return p, nil
	}
	return identity.Principal{}, errUnauthorized
}

// contextPrincipal is the request principal, the zero Principal on public routes.
func contextPrincipal(ctx echo.Context) identity.Principal {
	p, _ := getContextPrincipal(ctx)
	return p
}
