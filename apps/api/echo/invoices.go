package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core/invoice"
	"github.com/welfareschool/backend/core/live"
)

const entityInvoice = "invoice"

type invoiceApi struct {
	apiDeps
}

func registerInvoiceAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps apiDeps) {
	api := invoiceApi{deps}

	ig := g.Group("/invoices", jwt)
	ig.GET("", api.query)
	ig.POST("", api.create)
	ig.PUT("/:id", api.update)
	ig.DELETE("/:id", api.destroy)
}

// Handlers

func (api *invoiceApi) query(ctx echo.Context) error {
	filter := new(invoice.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	invoices, err := api.svcs.Invoices.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying invoices")
	}
	return ctx.JSON(http.StatusOK, filter.Filter(invoices))
}

func (api *invoiceApi) create(ctx echo.Context) error {
	id, _, err := api.caller(ctx)
	if err != nil {
		return err
	}
	var data invoice.NewInvoice
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInvoice")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	invID, err := api.mutator(id).Create(live.ActionCreate, entityInvoice, func() (string, error) {
		return api.svcs.Invoices.Create(reqCtx, id.UID, data)
	})
	if err != nil {
		return errors.Wrap(err, "creating invoice")
	}
	inv, err := api.svcs.Invoices.Get(reqCtx, invID)
	if err != nil {
		return errors.Wrap(err, "getting invoice")
	}
	return ctx.JSON(http.StatusCreated, inv)
}

// update applies a partial update. Moving an invoice to sent emails the client.
func (api *invoiceApi) update(ctx echo.Context) error {
	id, _, err := api.caller(ctx)
	if err != nil {
		return err
	}
	var data invoice.UpdateInvoice
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateInvoice")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	invID := ctx.Param("id")
	if err = api.mutator(id).Run(live.ActionUpdate, entityInvoice, func() error {
		return api.svcs.Invoices.Update(reqCtx, invID, data)
	}); err != nil {
		return errors.Wrap(err, "updating invoice")
	}
	inv, err := api.svcs.Invoices.Get(reqCtx, invID)
	if err != nil {
		return errors.Wrap(err, "getting invoice")
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *invoiceApi) destroy(ctx echo.Context) error {
	id, _, err := api.caller(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	invID := ctx.Param("id")
	if err = api.mutator(id).Run(live.ActionDelete, entityInvoice, func() error {
		return api.svcs.Invoices.Delete(reqCtx, invID)
	}); err != nil {
		return errors.Wrap(err, "deleting invoice")
	}
	return ctx.NoContent(http.StatusNoContent)
}
