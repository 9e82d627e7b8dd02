package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core/account"
	"github.com/welfareschool/backend/core/live"
)

const entityUser = "user"

type userApi struct {
	apiDeps
}

// registerUserAPI registers the account management endpoints. All of them are admin only.
func registerUserAPI(g *echo.Group, jwt, admin echo.MiddlewareFunc, deps apiDeps) {
	api := userApi{deps}

	ug := g.Group("/users", jwt, admin)
	ug.GET("", api.query)
	ug.POST("", api.create)
	ug.GET("/:id", api.retrieve)
	ug.PUT("/:id", api.update)
	ug.DELETE("/:id", api.destroy)
}

// Handlers

func (api *userApi) query(ctx echo.Context) error {
	id, isAdmin, err := api.caller(ctx)
	if err != nil {
		return err
	}
	filter := new(account.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	accounts, err := api.svcs.Accounts.Query(ctx.Request().Context(), id.UID, isAdmin)
	if err != nil {
		return errors.Wrap(err, "querying accounts")
	}
	return ctx.JSON(http.StatusOK, filter.Filter(accounts))
}

func (api *userApi) retrieve(ctx echo.Context) error {
	acc, err := api.svcs.Accounts.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting account")
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *userApi) create(ctx echo.Context) error {
	id, _, err := api.caller(ctx)
	if err != nil {
		return err
	}
	var data account.NewAccount
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	accID, err := api.mutator(id).Create(live.ActionAdd, entityUser, func() (string, error) {
		return api.svcs.Accounts.Create(reqCtx, data)
	})
	if err != nil {
		return errors.Wrap(err, "creating account")
	}
	acc, err := api.svcs.Accounts.Get(reqCtx, accID)
	if err != nil {
		return errors.Wrap(err, "getting account")
	}
	return ctx.JSON(http.StatusCreated, acc)
}

func (api *userApi) update(ctx echo.Context) error {
	id, _, err := api.caller(ctx)
	if err != nil {
		return err
	}
	var data account.UpdateAccount
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAccount")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	accID := ctx.Param("id")
	if err = api.mutator(id).Run(live.ActionUpdate, entityUser, func() error {
		return api.svcs.Accounts.Update(reqCtx, accID, data)
	}); err != nil {
		return errors.Wrap(err, "updating account")
	}
	acc, err := api.svcs.Accounts.Get(reqCtx, accID)
	if err != nil {
		return errors.Wrap(err, "getting account")
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *userApi) destroy(ctx echo.Context) error {
	id, _, err := api.caller(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	accID := ctx.Param("id")
	if err = api.mutator(id).Run(live.ActionDelete, entityUser, func() error {
		return api.svcs.Accounts.Delete(reqCtx, accID)
	}); err != nil {
		return errors.Wrap(err, "deleting account")
	}
	return ctx.NoContent(http.StatusNoContent)
}
