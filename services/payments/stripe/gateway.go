// Package stripegw opens & checks Stripe checkout sessions.
package stripegw

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
)

const metadataIntentID = "intent_id"

// Gateway talks to Stripe with the secret key of each call: the key is editable at runtime by admins.
type Gateway struct {
	backends *stripe.Backends // nil: stripe defaults
}

var _ payment.StripeGateway = (*Gateway)(nil)

func NewGateway() *Gateway {
	return &Gateway{}
}

// NewGatewayWithBackends is used to point the gateway to another API (stripe-mock).
func NewGatewayWithBackends(backends *stripe.Backends) *Gateway {
	return &Gateway{backends: backends}
}

func (gw *Gateway) api(secretKey string) *client.API {
	return client.New(secretKey, gw.backends)
}

func (gw *Gateway) CreateCheckoutSession(ctx context.Context, secretKey string, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.ProductName),
		}
		if item.ProductDescription != "" {
			product.Description = stripe.String(item.ProductDescription)
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(strings.ToLower(item.Currency)),
				ProductData: product,
				UnitAmount:  stripe.Int64(item.PriceInCents),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         lineItems,
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
	}
	if len(req.AllowedCountries) > 0 {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(req.AllowedCountries),
		}
	}
	params.Context = ctx
	params.AddMetadata(metadataIntentID, req.IntentID)

	s, err := gw.api(secretKey).CheckoutSessions.New(params)
	if err != nil {
		return payment.CheckoutSession{}, errors.Wrap(err, "stripe: creating checkout session")
	}
	return toCheckoutSession(s), nil
}

func (gw *Gateway) GetCheckoutSession(ctx context.Context, secretKey, id string) (payment.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := gw.api(secretKey).CheckoutSessions.Get(id, params)
	if err != nil {
		return payment.CheckoutSession{}, errors.Wrap(err, "stripe: getting checkout session")
	}
	return toCheckoutSession(s), nil
}

func toCheckoutSession(s *stripe.CheckoutSession) payment.CheckoutSession {
	cs := payment.CheckoutSession{
		ID:                s.ID,
		URL:               s.URL,
		Status:            string(s.Status),
		PaymentStatus:     string(s.PaymentStatus),
		ClientReferenceID: s.ClientReferenceID,
		AmountTotal:       s.AmountTotal,
		Currency:          string(s.Currency),
	}
	if s.PaymentIntent != nil {
		cs.PaymentIntentID = s.PaymentIntent.ID
	}
	return cs
}
