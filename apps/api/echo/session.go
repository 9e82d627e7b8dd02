package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/core/session"
	"github.com/welfareschool/backend/services/identity"
)

type (
	TokenResponse struct {
		Token string `json:"token"`
	}

	authApi struct {
		apiDeps
		auth     *authenticator
		provider session.Provider
	}
)

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, provider *identity.Service, deps apiDeps) {
	api := authApi{apiDeps: deps, auth: auth, provider: provider}

	ag := g.Group("/auth")
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)

	g.GET("/session", api.session, jwt)
}

// Handlers

func (api *authApi) register(ctx echo.Context) error {
	var data session.Registration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Registration")
	}

	id, err := api.provider.Register(ctx.Request().Context(), data)
	if err != nil {
		return api.authFailure(err, "registering identity")
	}
	token, err := api.auth.GenerateToken(id)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusCreated, TokenResponse{Token: token})
}

func (api *authApi) login(ctx echo.Context) error {
	var data session.Credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}

	id, err := api.provider.SignIn(ctx.Request().Context(), data)
	if err != nil {
		return api.authFailure(err, "signing in")
	}
	token, err := api.auth.GenerateToken(id)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

// authFailure passes validation errors through and turns everything else into a
// fixed authentication message. Unexpected failures are logged.
func (api *authApi) authFailure(err error, action string) error {
	switch errors.Cause(err).(type) {
	case validator.ValidationErrors, *core.ValidationError:
		return err
	}
	if !identity.IsAuthError(err) {
		api.logger.Error(action, err)
	}
	return authError(err)
}

// session returns the resolved role of the caller. A failed lookup resolves to
// a regular account.
func (api *authApi) session(ctx echo.Context) error {
	id, isAdmin, err := api.caller(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, session.State{Identity: &id, IsAdmin: isAdmin})
}
