package echoapi

import (
	"io/ioutil"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
)

const razorpaySignatureHeader = "X-Razorpay-Signature"

type paymentApi struct {
	svc      payment.ServiceInterface
	validate *validator.Validate
}

func registerPaymentAPI(g *echo.Group, mw middlewares, svc payment.ServiceInterface, validate *validator.Validate) {
	api := paymentApi{svc: svc, validate: validate}

	g.POST("/webhooks/razorpay", api.razorpayWebhook)

	pg := g.Group("/payments")

	// un-authed endpoints
	pg.GET("/plans", api.plans)
	pg.GET("/upi", api.upiDetails)
	pg.GET("/bank", api.bankAccount)
	pg.GET("/stripe/configured", api.isStripeConfigured)

	// stripe
	pg.PUT("/stripe/config", api.setStripeConfiguration, mw.auth, mw.admin)
	pg.POST("/stripe/checkout", api.createCheckoutSession, mw.auth)
	pg.POST("/stripe/finalize", api.finalizeStripeCheckout, mw.auth, mw.limited)
	pg.GET("/stripe/sessions/:id", api.stripeSessionStatus, mw.auth)

	// razorpay
	pg.POST("/razorpay/orders", api.createRazorpayOrder, mw.auth)
	pg.POST("/razorpay/confirm", api.confirmRazorpay, mw.auth, mw.limited)

	// manual UPI/QR
	pg.POST("/manual", api.initiateManual, mw.auth)
	pg.POST("/manual/confirm", api.confirmManual, mw.auth, mw.limited)

	// ledger
	pg.GET("", api.query, mw.auth, mw.admin)
	pg.GET("/mine", api.queryOwn, mw.auth)
	pg.GET("/:id", api.retrieve, mw.auth)
	pg.PUT("/:id/status", api.updateStatus, mw.auth, mw.admin)
	g.GET("/users/:id/payments", api.queryUser, mw.auth, mw.admin)

	// intents & reconciliation
	pg.GET("/intents", api.queryIntents, mw.auth, mw.admin)
	pg.GET("/intents/:id", api.retrieveIntent, mw.auth)
	pg.POST("/intents/:id/reconcile", api.reconcile, mw.auth, mw.admin)
	pg.POST("/reconcile", api.reconcilePending, mw.auth, mw.admin)
}

// Handlers

func (api *paymentApi) plans(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Plans())
}

func (api *paymentApi) upiDetails(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.UPIDetails())
}

func (api *paymentApi) bankAccount(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.BankAccount())
}

func (api *paymentApi) isStripeConfigured(ctx echo.Context) error {
	ok, err := api.svc.IsStripeConfigured(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "checking stripe configuration")
	}
	return ctx.JSON(http.StatusOK, ConfiguredResponse{Configured: ok})
}

func (api *paymentApi) setStripeConfiguration(ctx echo.Context) error {
	var data payment.StripeConfiguration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StripeConfiguration")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	if err := api.svc.SetStripeConfiguration(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "setting stripe configuration")
	}
	return ctx.JSON(http.StatusOK, ConfiguredResponse{Configured: true})
}

func (api *paymentApi) createCheckoutSession(ctx echo.Context) error {
	var data payment.NewCheckout
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCheckout")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	res, err := api.svc.CreateCheckoutSession(ctx.Request().Context(), contextUserID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating checkout session")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *paymentApi) finalizeStripeCheckout(ctx echo.Context) error {
	var data FinalizeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FinalizeRequest")
	}
	data.SessionID = core.CleanString(data.SessionID)
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	ok, err := api.svc.FinalizeStripeCheckout(ctx.Request().Context(), contextUserID(ctx), data.SessionID)
	if err != nil {
		return errors.Wrap(err, "finalizing checkout")
	}
	return ctx.JSON(http.StatusOK, FinalizeResponse{Success: ok})
}

func (api *paymentApi) stripeSessionStatus(ctx echo.Context) error {
	status, err := api.svc.StripeSessionStatus(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting session status")
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *paymentApi) createRazorpayOrder(ctx echo.Context) error {
	var data payment.PlanSelection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PlanSelection")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	order, err := api.svc.CreateRazorpayOrder(ctx.Request().Context(), contextUserID(ctx), data.PlanID)
	if err != nil {
		return errors.Wrap(err, "creating razorpay order")
	}
	return ctx.JSON(http.StatusCreated, order)
}

func (api *paymentApi) confirmRazorpay(ctx echo.Context) error {
	var data payment.RazorpayConfirmation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RazorpayConfirmation")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	in, err := api.svc.ConfirmRazorpay(ctx.Request().Context(), contextUserID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "confirming razorpay payment")
	}
	return ctx.JSON(http.StatusOK, in)
}

func (api *paymentApi) razorpayWebhook(ctx echo.Context) error {
	body, err := ioutil.ReadAll(ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "reading webhook body")
	}
	err = api.svc.HandleRazorpayWebhook(ctx.Request().Context(), body, ctx.Request().Header.Get(razorpaySignatureHeader))
	if err != nil {
		return errors.Wrap(err, "handling razorpay webhook")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (api *paymentApi) initiateManual(ctx echo.Context) error {
	var data payment.PlanSelection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PlanSelection")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	in, err := api.svc.InitiateManual(ctx.Request().Context(), contextUserID(ctx), data.PlanID)
	if err != nil {
		return errors.Wrap(err, "initiating manual payment")
	}
	return ctx.JSON(http.StatusCreated, in)
}

func (api *paymentApi) confirmManual(ctx echo.Context) error {
	var data payment.ManualConfirmation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ManualConfirmation")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	in, err := api.svc.ConfirmManual(ctx.Request().Context(), contextUserID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "confirming manual payment")
	}
	return ctx.JSON(http.StatusOK, in)
}

func (api *paymentApi) respondList(ctx echo.Context, filter payment.QueryFilter) error {
	records, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if records == nil {
		records = []payment.PaymentRecord{}
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *paymentApi) query(ctx echo.Context) error {
	var filter payment.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	if err := api.validate.Struct(filter); err != nil {
		return err
	}
	return api.respondList(ctx, filter)
}

func (api *paymentApi) queryOwn(ctx echo.Context) error {
	return api.respondList(ctx, payment.QueryFilter{UserID: contextUserID(ctx)})
}

func (api *paymentApi) queryUser(ctx echo.Context) error {
	return api.respondList(ctx, payment.QueryFilter{UserID: ctx.Param("id")})
}

// retrieve returns the payment to its owner or to an admin.
func (api *paymentApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if usr, _ := getContextUser(ctx); !(usr.IsAdmin() || usr.ID == p.UserID) {
		return payment.ErrNotFound
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *paymentApi) updateStatus(ctx echo.Context) error {
	var data payment.StatusUpdate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusUpdate")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	p, err := api.svc.UpdateStatus(ctx.Request().Context(), ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "updating payment status")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *paymentApi) queryIntents(ctx echo.Context) error {
	filter := payment.IntentFilter{
		States:   ctx.QueryParams()["state"],
		Strategy: ctx.QueryParam("strategy"),
		UserID:   ctx.QueryParam("user"),
	}
	intents, err := api.svc.QueryIntents(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying intents")
	}
	if intents == nil {
		intents = []payment.Intent{}
	}
	return ctx.JSON(http.StatusOK, intents)
}

func (api *paymentApi) retrieveIntent(ctx echo.Context) error {
	in, err := api.svc.GetIntent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if usr, _ := getContextUser(ctx); !(usr.IsAdmin() || usr.ID == in.UserID) {
		return payment.ErrIntentNotFound
	}
	return ctx.JSON(http.StatusOK, in)
}

func (api *paymentApi) reconcile(ctx echo.Context) error {
	in, err := api.svc.Reconcile(ctx.Request().Context(), contextUserID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "reconciling intent")
	}
	return ctx.JSON(http.StatusOK, in)
}

func (api *paymentApi) reconcilePending(ctx echo.Context) error {
	report, err := api.svc.ReconcilePending(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "reconciling pending intents")
	}
	return ctx.JSON(http.StatusOK, report)
}

type (
	FinalizeRequest struct {
		SessionID string `json:"sessionId" validate:"required"`
	}

	FinalizeResponse struct {
		Success bool `json:"success"`
	}

	ConfiguredResponse struct {
		Configured bool `json:"configured"`
	}
)
