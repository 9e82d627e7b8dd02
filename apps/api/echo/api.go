package echoapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/core/live"
	"github.com/welfareschool/backend/core/session"
)

// apiDeps is shared by every resource API.
type apiDeps struct {
	validate *validator.Validate
	svcs     live.Services
	logger   core.Logger
	hub      *Hub
}

// caller returns the identity of the request and whether it is a resolved admin.
func (d apiDeps) caller(ctx echo.Context) (session.Identity, bool, error) {
	id, err := contextIdentity(ctx)
	if err != nil {
		return session.Identity{}, false, errors.Wrap(err, "getting context identity")
	}
	return id, resolveIsAdmin(ctx, d.svcs.Accounts, d.logger, id), nil
}

// mutator reports mutation outcomes to the live connections of id.
func (d apiDeps) mutator(id session.Identity) live.Mutator {
	return live.NewMutator(d.hub.Notifier(id.UID), d.logger)
}
