package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core/attendance"
	"github.com/welfareschool/backend/core/dashboard"
)

type dashboardApi struct {
	apiDeps
}

func registerDashboardAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps apiDeps) {
	api := dashboardApi{deps}
	g.GET("/dashboard", api.retrieve, jwt)
}

// retrieve derives the overview from the caller's collections. Account counts
// are only filled in for admins.
func (api *dashboardApi) retrieve(ctx echo.Context) error {
	id, isAdmin, err := api.caller(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()

	var in dashboard.Input
	if in.Students, err = api.svcs.Students.Query(reqCtx, id.UID, isAdmin); err != nil {
		return errors.Wrap(err, "querying students")
	}
	if in.Transactions, err = api.svcs.Transactions.Query(reqCtx); err != nil {
		return errors.Wrap(err, "querying transactions")
	}
	if in.Invoices, err = api.svcs.Invoices.Query(reqCtx); err != nil {
		return errors.Wrap(err, "querying invoices")
	}
	if in.Attendance, err = api.svcs.Attendance.Get(reqCtx, attendance.Today()); err != nil {
		return errors.Wrap(err, "getting attendance")
	}
	if isAdmin {
		if in.Accounts, err = api.svcs.Accounts.Query(reqCtx, id.UID, isAdmin); err != nil {
			return errors.Wrap(err, "querying accounts")
		}
	}
	return ctx.JSON(http.StatusOK, dashboard.Compute(in))
}
