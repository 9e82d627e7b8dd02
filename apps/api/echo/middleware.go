package echoapi

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/core/account"
	"github.com/welfareschool/backend/core/session"
)

const contextIsAdminKey = "isAdmin"

// adminMiddleware lets resolved admins through. A failed role lookup is logged and
// treated as non-admin.
func adminMiddleware(accounts *account.Service, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := contextIdentity(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context identity")
			}
			if resolveIsAdmin(ctx, accounts, logger, id) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// resolveIsAdmin looks up (once per request) whether id holds the admin flag.
func resolveIsAdmin(ctx echo.Context, accounts *account.Service, logger core.Logger, id session.Identity) bool {
	if isAdmin, ok := ctx.Get(contextIsAdminKey).(bool); ok {
		return isAdmin
	}
	isAdmin, err := accounts.IsAdmin(ctx.Request().Context(), id.UID)
	if err != nil {
		logger.Error("checking admin status", err, id)
		isAdmin = false
	}
	ctx.Set(contextIsAdminKey, isAdmin)
	return isAdmin
}

// timeoutMiddleware bounds the request context. Live connections are not bounded.
func timeoutMiddleware(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if ctx.IsWebSocket() {
				return next(ctx)
			}
			reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), timeout)
			defer cancel()
			ctx.SetRequest(ctx.Request().WithContext(reqCtx))
			return next(ctx)
		}
	}
}
