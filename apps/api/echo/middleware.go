package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/audit"
	"github.com/trezcool/piyuguide/core/user"
)

// principalMiddleware resolves the principal of the token's subject, and stamps the request
// context with the client address for the audit log.
func principalMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			p, err := svc.Principal(ctx.Request().Context(), claims.Subject)
			if err != nil {
				if core.IsNotFound(err) {
					return errUnauthorized
				}
				return errors.Wrap(err, "resolving principal")
			}
			ctx.Set(contextPrincipalKey, p)

			req := ctx.Request()
			ctx.SetRequest(req.WithContext(audit.WithRequestInfo(req.Context(), ctx.RealIP(), req.UserAgent())))
			return next(ctx)
		}
	}
}

func officeAdminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p, err := getContextPrincipal(ctx)
			if err != nil {
				return err
			}
			if !p.IsOfficeAdmin() {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
