package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core/profile"
)

type profileApi struct {
	svc      profile.ServiceInterface
	validate *validator.Validate
}

func registerProfileAPI(g *echo.Group, mw middlewares, svc profile.ServiceInterface, validate *validator.Validate) {
	api := profileApi{svc: svc, validate: validate}

	g.GET("/profile", api.retrieveOwn, mw.auth)
	g.PUT("/profile", api.save, mw.auth)
	g.GET("/users/:id/profile", api.retrieve, mw.auth, mw.admin)
}

// respond sends the profile, or null when the user has none yet.
func (api *profileApi) respond(ctx echo.Context, userID string) error {
	p, err := api.svc.Get(ctx.Request().Context(), userID)
	if err != nil {
		if errors.Cause(err) == profile.ErrNotFound {
			return ctx.JSON(http.StatusOK, nil)
		}
		return errors.Wrap(err, "getting profile")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *profileApi) retrieveOwn(ctx echo.Context) error {
	return api.respond(ctx, contextUserID(ctx))
}

func (api *profileApi) retrieve(ctx echo.Context) error {
	return api.respond(ctx, ctx.Param("id"))
}

func (api *profileApi) save(ctx echo.Context) error {
	var data profile.UserProfile
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UserProfile")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	p, err := api.svc.Save(ctx.Request().Context(), contextUserID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "saving profile")
	}
	return ctx.JSON(http.StatusOK, p)
}
