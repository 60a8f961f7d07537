package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
	"github.com/caffeinepub/diploma-smart-study-hub/core/subscription"
)

// ErrPaymentConfirmationFailed is returned when the backend could not confirm a Stripe checkout.
//
//goland:noinspection GoErrorStringFormat
var ErrPaymentConfirmationFailed = errors.New("Payment confirmation failed. Please contact support.")

// PaymentResult is the outcome of a confirmed payment.
type PaymentResult struct {
	Intent payment.Intent
	// Activated is false when the payment was confirmed but the subscription activation is still pending.
	Activated bool
}

// Payments runs the payment confirmation flows; a success invalidates the cached subscription check.
type Payments struct {
	client *Client
	access *AccessChecker // optional
}

func (c *Client) Payments(ac *AccessChecker) *Payments {
	return &Payments{client: c, access: ac}
}

func (p *Payments) succeeded(res PaymentResult) (PaymentResult, error) {
	if p.access != nil {
		p.access.InvalidateSubscription()
	}
	return res, nil
}

func (p *Payments) Plans(ctx context.Context) ([]payment.Plan, error) {
	var plans []payment.Plan
	return plans, p.client.query(ctx, "/payments/plans", nil, &plans)
}

func (p *Payments) UPIDetails(ctx context.Context) (payment.UPIDetails, error) {
	var details payment.UPIDetails
	return details, p.client.query(ctx, "/payments/upi", nil, &details)
}

func (p *Payments) BankAccount(ctx context.Context) (payment.BankAccount, error) {
	var account payment.BankAccount
	return account, p.client.query(ctx, "/payments/bank", nil, &account)
}

func (p *Payments) IsStripeConfigured(ctx context.Context) (bool, error) {
	var res struct {
		Configured bool `json:"configured"`
	}
	return res.Configured, p.client.query(ctx, "/payments/stripe/configured", nil, &res)
}

// Stripe

func (p *Payments) CreateCheckoutSession(ctx context.Context, nc payment.NewCheckout) (payment.CheckoutResult, error) {
	var res payment.CheckoutResult
	err := p.client.call(ctx, rest.Post, "/payments/stripe/checkout", nil, nc, &res)
	return res, errors.Wrap(err, "creating checkout session")
}

// ConfirmStripe finalizes the checkout sessionID, once the caller is back from Stripe.
func (p *Payments) ConfirmStripe(ctx context.Context, sessionID string) (PaymentResult, error) {
	var res struct {
		Success bool `json:"success"`
	}
	body := map[string]string{"sessionId": sessionID}
	if err := p.client.call(ctx, rest.Post, "/payments/stripe/finalize", nil, body, &res); err != nil {
		return PaymentResult{}, errors.Wrap(err, "finalizing checkout")
	}
	if !res.Success {
		return PaymentResult{}, ErrPaymentConfirmationFailed
	}
	return p.succeeded(PaymentResult{Activated: true})
}

func (p *Payments) StripeSessionStatus(ctx context.Context, sessionID string) (payment.SessionStatus, error) {
	var status payment.SessionStatus
	return status, p.client.query(ctx, "/payments/stripe/sessions/"+url.PathEscape(sessionID), nil, &status)
}

// Razorpay

func (p *Payments) CreateRazorpayOrder(ctx context.Context, planID string) (payment.RazorpayOrder, error) {
	var order payment.RazorpayOrder
	err := p.client.call(ctx, rest.Post, "/payments/razorpay/orders", nil, payment.PlanSelection{PlanID: planID}, &order)
	return order, errors.Wrap(err, "creating razorpay order")
}

// ConfirmRazorpay confirms the payment handed back by the Razorpay checkout.
// A confirmed payment is a success even when the subscription activation failed:
// the activation is retried by the backend reconciler.
func (p *Payments) ConfirmRazorpay(ctx context.Context, rc payment.RazorpayConfirmation) (PaymentResult, error) {
	var in payment.Intent
	if err := p.client.call(ctx, rest.Post, "/payments/razorpay/confirm", nil, rc, &in); err != nil {
		return PaymentResult{}, errors.Wrap(err, "confirming razorpay payment")
	}
	return p.succeeded(PaymentResult{Intent: in, Activated: in.Activated()})
}

// Manual UPI / bank transfer

func (p *Payments) StartManual(ctx context.Context, planID string) (payment.Intent, error) {
	var in payment.Intent
	err := p.client.call(ctx, rest.Post, "/payments/manual", nil, payment.PlanSelection{PlanID: planID}, &in)
	return in, errors.Wrap(err, "starting manual payment")
}

// ConfirmManual asserts the caller completed the transfer for intentID; reference is optional.
func (p *Payments) ConfirmManual(ctx context.Context, intentID, reference string) (PaymentResult, error) {
	var in payment.Intent
	mc := payment.ManualConfirmation{IntentID: intentID, Reference: reference}
	if err := p.client.call(ctx, rest.Post, "/payments/manual/confirm", nil, mc, &in); err != nil {
		return PaymentResult{}, errors.Wrap(err, "confirming manual payment")
	}
	return p.succeeded(PaymentResult{Intent: in, Activated: in.Activated()})
}

// Admin

func (p *Payments) ActivateUser(ctx context.Context, userID string) (payment.Intent, error) {
	var in payment.Intent
	err := p.client.call(ctx, rest.Post, fmt.Sprintf("/users/%s/activate", url.PathEscape(userID)), nil, nil, &in)
	return in, errors.Wrap(err, "activating user")
}

func (p *Payments) DeactivateUser(ctx context.Context, userID string) (subscription.Subscription, error) {
	var sub subscription.Subscription
	err := p.client.call(ctx, rest.Post, fmt.Sprintf("/users/%s/deactivate", url.PathEscape(userID)), nil, nil, &sub)
	return sub, errors.Wrap(err, "deactivating user")
}

func (p *Payments) Mine(ctx context.Context) ([]payment.PaymentRecord, error) {
	var records []payment.PaymentRecord
	return records, p.client.query(ctx, "/payments/mine", nil, &records)
}
