package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core/access"
	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
	"github.com/caffeinepub/diploma-smart-study-hub/core/subscription"
)

type subscriptionApi struct {
	checker  *access.Checker
	svc      subscription.ServiceInterface
	payments payment.ServiceInterface
}

func registerSubscriptionAPI(
	g *echo.Group,
	mw middlewares,
	checker *access.Checker,
	svc subscription.ServiceInterface,
	payments payment.ServiceInterface,
) {
	api := subscriptionApi{checker: checker, svc: svc, payments: payments}

	g.GET("/access", api.access)
	g.GET("/subscription", api.status, mw.auth)
	g.GET("/subscriptions/active", api.queryActive, mw.auth, mw.admin)
	g.POST("/users/:id/activate", api.activate, mw.auth, mw.admin)
	g.POST("/users/:id/deactivate", api.deactivate, mw.auth, mw.admin)
}

// access returns the access decision of the caller; guests get everything false.
func (api *subscriptionApi) access(ctx echo.Context) error {
	d, _ := api.checker.Decide(ctx.Request().Context(), contextUserID(ctx))
	return ctx.JSON(http.StatusOK, d)
}

func (api *subscriptionApi) status(ctx echo.Context) error {
	active, err := api.svc.IsActive(ctx.Request().Context(), contextUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "checking subscription")
	}
	return ctx.JSON(http.StatusOK, SubscriptionStatus{Active: active})
}

func (api *subscriptionApi) queryActive(ctx echo.Context) error {
	subs, err := api.svc.QueryActive(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying active subscriptions")
	}
	if subs == nil {
		subs = []subscription.Subscription{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *subscriptionApi) activate(ctx echo.Context) error {
	in, err := api.payments.AdminActivate(ctx.Request().Context(), contextUserID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "activating user account")
	}
	return ctx.JSON(http.StatusOK, in)
}

func (api *subscriptionApi) deactivate(ctx echo.Context) error {
	sub, err := api.payments.AdminDeactivate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deactivating user account")
	}
	return ctx.JSON(http.StatusOK, sub)
}

type SubscriptionStatus struct {
	Active bool `json:"active"`
}
