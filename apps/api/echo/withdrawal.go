package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
	"github.com/caffeinepub/diploma-smart-study-hub/core/withdrawal"
)

type withdrawalApi struct {
	svc      withdrawal.ServiceInterface
	payments payment.ServiceInterface
	validate *validator.Validate
}

func registerWithdrawalAPI(
	g *echo.Group,
	mw middlewares,
	svc withdrawal.ServiceInterface,
	payments payment.ServiceInterface,
	validate *validator.Validate,
) {
	api := withdrawalApi{svc: svc, payments: payments, validate: validate}

	wg := g.Group("/withdrawals")
	wg.GET("/contact", api.contact)
	wg.POST("", api.submit, mw.auth, mw.limited)
	wg.GET("", api.query, mw.auth, mw.admin)
	wg.GET("/mine", api.queryOwn, mw.auth)
	wg.GET("/:id", api.retrieve, mw.auth)
	wg.PUT("/:id/status", api.updateStatus, mw.auth, mw.admin)
}

func (api *withdrawalApi) contact(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ContactResponse{PhoneNumber: api.payments.SupportPhone()})
}

func (api *withdrawalApi) submit(ctx echo.Context) error {
	var data withdrawal.NewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	wr, err := api.svc.Submit(ctx.Request().Context(), contextUserID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "submitting withdrawal request")
	}
	return ctx.JSON(http.StatusCreated, wr)
}

func (api *withdrawalApi) respondList(ctx echo.Context, filter withdrawal.QueryFilter) error {
	requests, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying withdrawal requests")
	}
	if requests == nil {
		requests = []withdrawal.Request{}
	}
	return ctx.JSON(http.StatusOK, requests)
}

func (api *withdrawalApi) query(ctx echo.Context) error {
	var filter withdrawal.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []withdrawal.Request{})
	}
	return api.respondList(ctx, filter)
}

func (api *withdrawalApi) queryOwn(ctx echo.Context) error {
	return api.respondList(ctx, withdrawal.QueryFilter{UserID: contextUserID(ctx)})
}

func (api *withdrawalApi) retrieve(ctx echo.Context) error {
	wr, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if usr, _ := getContextUser(ctx); !(usr.IsAdmin() || usr.ID == wr.UserID) {
		return withdrawal.ErrNotFound
	}
	return ctx.JSON(http.StatusOK, wr)
}

func (api *withdrawalApi) updateStatus(ctx echo.Context) error {
	var data withdrawal.StatusUpdate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusUpdate")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	wr, err := api.svc.UpdateStatus(ctx.Request().Context(), ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "updating withdrawal status")
	}
	return ctx.JSON(http.StatusOK, wr)
}

type ContactResponse struct {
	PhoneNumber string `json:"phoneNumber"`
}
