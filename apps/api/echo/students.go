package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core/account"
	"github.com/welfareschool/backend/core/live"
	"github.com/welfareschool/backend/core/student"
)

const entityStudent = "student"

type studentApi struct {
	apiDeps
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps apiDeps) {
	api := studentApi{deps}

	sg := g.Group("/students", jwt)
	sg.GET("", api.query)
	sg.POST("", api.create)
	sg.GET("/export", api.export)
	sg.PUT("/:id", api.update)
	sg.DELETE("/:id", api.destroy)
}

// Handlers

func (api *studentApi) query(ctx echo.Context) error {
	students, err := api.filtered(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) filtered(ctx echo.Context) ([]student.Student, error) {
	id, isAdmin, err := api.caller(ctx)
	if err != nil {
		return nil, err
	}
	filter := new(student.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return nil, errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	students, err := api.svcs.Students.Query(ctx.Request().Context(), id.UID, isAdmin)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return filter.Filter(students), nil
}

// ExportRow is a filtered student along with the display name of their creator.
type ExportRow struct {
	student.Student
	CreatedByName string `json:"createdByName"`
}

// export returns the filtered rows that a report is rendered from.
func (api *studentApi) export(ctx echo.Context) error {
	students, err := api.filtered(ctx)
	if err != nil {
		return err
	}
	accounts, err := api.svcs.Accounts.Query(ctx.Request().Context(), "", true)
	if err != nil {
		return errors.Wrap(err, "querying accounts")
	}

	rows := make([]ExportRow, 0, len(students))
	for _, s := range students {
		rows = append(rows, ExportRow{Student: s, CreatedByName: account.CreatorName(accounts, s.CreatedBy)})
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *studentApi) create(ctx echo.Context) error {
	id, _, err := api.caller(ctx)
	if err != nil {
		return err
	}
	var data student.NewStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	sid, err := api.mutator(id).Create(live.ActionAdd, entityStudent, func() (string, error) {
		return api.svcs.Students.Create(reqCtx, id.UID, data)
	})
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	s, err := api.svcs.Students.Get(reqCtx, sid)
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *studentApi) update(ctx echo.Context) error {
	id, _, err := api.caller(ctx)
	if err != nil {
		return err
	}
	var data student.UpdateStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	sid := ctx.Param("id")
	if err = api.mutator(id).Run(live.ActionUpdate, entityStudent, func() error {
		return api.svcs.Students.Update(reqCtx, sid, data)
	}); err != nil {
		return errors.Wrap(err, "updating student")
	}
	s, err := api.svcs.Students.Get(reqCtx, sid)
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	id, _, err := api.caller(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	sid := ctx.Param("id")
	if err = api.mutator(id).Run(live.ActionDelete, entityStudent, func() error {
		return api.svcs.Students.Delete(reqCtx, sid)
	}); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}
