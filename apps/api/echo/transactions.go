package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core/live"
	"github.com/welfareschool/backend/core/transaction"
)

const entityTransaction = "transaction"

type transactionApi struct {
	apiDeps
}

func registerTransactionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps apiDeps) {
	api := transactionApi{deps}

	tg := g.Group("/transactions", jwt)
	tg.GET("", api.query)
	tg.POST("", api.create)
	tg.PUT("/:id", api.update)
	tg.DELETE("/:id", api.destroy)
}

// Handlers

func (api *transactionApi) query(ctx echo.Context) error {
	filter := new(transaction.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	txs, err := api.svcs.Transactions.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying transactions")
	}
	return ctx.JSON(http.StatusOK, filter.Filter(txs))
}

func (api *transactionApi) create(ctx echo.Context) error {
	id, _, err := api.caller(ctx)
	if err != nil {
		return err
	}
	var data transaction.NewTransaction
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTransaction")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	txID, err := api.mutator(id).Create(live.ActionAdd, entityTransaction, func() (string, error) {
		return api.svcs.Transactions.Create(reqCtx, id.UID, data)
	})
	if err != nil {
		return errors.Wrap(err, "creating transaction")
	}
	tx, err := api.svcs.Transactions.Get(reqCtx, txID)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	return ctx.JSON(http.StatusCreated, tx)
}

func (api *transactionApi) update(ctx echo.Context) error {
	id, _, err := api.caller(ctx)
	if err != nil {
		return err
	}
	var data transaction.UpdateTransaction
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTransaction")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	txID := ctx.Param("id")
	if err = api.mutator(id).Run(live.ActionUpdate, entityTransaction, func() error {
		return api.svcs.Transactions.Update(reqCtx, txID, data)
	}); err != nil {
		return errors.Wrap(err, "updating transaction")
	}
	tx, err := api.svcs.Transactions.Get(reqCtx, txID)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	return ctx.JSON(http.StatusOK, tx)
}

func (api *transactionApi) destroy(ctx echo.Context) error {
	id, _, err := api.caller(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	txID := ctx.Param("id")
	if err = api.mutator(id).Run(live.ActionDelete, entityTransaction, func() error {
		return api.svcs.Transactions.Delete(reqCtx, txID)
	}); err != nil {
		return errors.Wrap(err, "deleting transaction")
	}
	return ctx.NoContent(http.StatusNoContent)
}
