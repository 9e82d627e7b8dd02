package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core/attendance"
	"github.com/welfareschool/backend/core/live"
	"github.com/welfareschool/backend/core/session"
	"github.com/welfareschool/backend/core/student"
)

const entityAttendance = "attendance"

type attendanceApi struct {
	apiDeps
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps apiDeps) {
	api := attendanceApi{deps}

	ag := g.Group("/attendance", jwt)
	ag.GET("", api.query)
	ag.GET("/:date", api.retrieve)
	ag.PUT("/:date", api.update)
	ag.POST("/:date/toggle/:studentId", api.toggle)
	ag.POST("/:date/mark", api.markAll)
}

// DayResponse is the attendance of one date over a cohort.
type DayResponse struct {
	Date    string             `json:"date"`
	Day     attendance.Day     `json:"day"`
	Summary attendance.Summary `json:"summary"`
}

// MarkAllRequest sets every student of the cohort present or absent.
type MarkAllRequest struct {
	Present bool   `json:"present"`
	Grade   string `json:"grade"`
	Section string `json:"section"`
}

// Handlers

func (api *attendanceApi) query(ctx echo.Context) error {
	reg, err := api.svcs.Attendance.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	return ctx.JSON(http.StatusOK, reg)
}

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	id, isAdmin, err := api.caller(ctx)
	if err != nil {
		return err
	}
	var cohort attendance.CohortFilter
	if err = ctx.Bind(&cohort); err != nil {
		return errors.Wrap(err, "binding to CohortFilter")
	}
	cohort.Clean()

	date := ctx.Param("date")
	day, err := api.svcs.Attendance.Get(ctx.Request().Context(), date)
	if err != nil {
		return errors.Wrap(err, "getting attendance")
	}
	return api.respond(ctx, id, isAdmin, date, day, cohort)
}

// update replaces the flags of the posted students for the date.
func (api *attendanceApi) update(ctx echo.Context) error {
	id, isAdmin, err := api.caller(ctx)
	if err != nil {
		return err
	}
	var day attendance.Day
	if err = ctx.Bind(&day); err != nil {
		return errors.Wrap(err, "binding to Day")
	}
	if day == nil {
		day = attendance.Day{}
	}

	reqCtx := ctx.Request().Context()
	date := ctx.Param("date")
	if _, err = attendance.ParseDate(date); err != nil {
		return err
	}
	if err = api.mutator(id).Run(live.ActionUpdate, entityAttendance, func() error {
		return api.svcs.Attendance.Update(reqCtx, id.UID, date, day)
	}); err != nil {
		return errors.Wrap(err, "updating attendance")
	}

	stored, err := api.svcs.Attendance.Get(reqCtx, date)
	if err != nil {
		return errors.Wrap(err, "getting attendance")
	}
	return api.respond(ctx, id, isAdmin, date, stored, attendance.CohortFilter{})
}

func (api *attendanceApi) toggle(ctx echo.Context) error {
	id, isAdmin, err := api.caller(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	date, studentID := ctx.Param("date"), ctx.Param("studentId")
	if _, err = attendance.ParseDate(date); err != nil {
		return err
	}

	var day attendance.Day
	if err = api.mutator(id).Run(live.ActionUpdate, entityAttendance, func() (err error) {
		day, err = api.svcs.Attendance.Toggle(reqCtx, id.UID, date, studentID)
		return err
	}); err != nil {
		return errors.Wrap(err, "toggling attendance")
	}
	return api.respond(ctx, id, isAdmin, date, day, attendance.CohortFilter{})
}

func (api *attendanceApi) markAll(ctx echo.Context) error {
	id, isAdmin, err := api.caller(ctx)
	if err != nil {
		return err
	}
	var data MarkAllRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkAllRequest")
	}
	cohort := attendance.CohortFilter{Grade: data.Grade, Section: data.Section}
	cohort.Clean()

	reqCtx := ctx.Request().Context()
	date := ctx.Param("date")
	if _, err = attendance.ParseDate(date); err != nil {
		return err
	}
	students, err := api.students(reqCtx, id, isAdmin)
	if err != nil {
		return err
	}

	var day attendance.Day
	if err = api.mutator(id).Run(live.ActionUpdate, entityAttendance, func() (err error) {
		day, err = api.svcs.Attendance.MarkAll(reqCtx, id.UID, date, cohort.IDs(students), data.Present)
		return err
	}); err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return api.respond(ctx, id, isAdmin, date, day, cohort)
}

func (api *attendanceApi) students(ctx context.Context, id session.Identity, isAdmin bool) ([]student.Student, error) {
	students, err := api.svcs.Students.Query(ctx, id.UID, isAdmin)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

// respond summarizes day over the students of the cohort visible to the caller.
func (api *attendanceApi) respond(ctx echo.Context, id session.Identity, isAdmin bool, date string, day attendance.Day, cohort attendance.CohortFilter) error {
	students, err := api.students(ctx.Request().Context(), id, isAdmin)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, DayResponse{
		Date:    date,
		Day:     day,
		Summary: attendance.Summarize(day, cohort.IDs(students)),
	})
}
