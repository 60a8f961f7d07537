package payment

import "context"

type (
	// CheckoutRequest is what a StripeGateway needs to open a checkout session.
	CheckoutRequest struct {
		IntentID         string
		UserID           string
		Items            []ShoppingItem
		SuccessURL       string
		CancelURL        string
		AllowedCountries []string
	}

	CheckoutSession struct {
		ID                string
		URL               string
		Status            string // open | complete | expired
		PaymentStatus     string // paid | unpaid | no_payment_required
		PaymentIntentID   string
		ClientReferenceID string
		AmountTotal       int64
		Currency          string
	}

	StripeGateway interface {
		CreateCheckoutSession(ctx context.Context, secretKey string, req CheckoutRequest) (CheckoutSession, error)
		GetCheckoutSession(ctx context.Context, secretKey, id string) (CheckoutSession, error)
	}

	Order struct {
		ID       string
		Amount   int64
		Currency string
		Receipt  string
		Status   string
	}

	RazorpayGateway interface {
		KeyID() string
		CreateOrder(ctx context.Context, amount int64, currency, receipt string) (Order, error)
		// VerifyPaymentSignature checks the HMAC-SHA256 of "order_id|payment_id" sent back by the checkout widget.
		VerifyPaymentSignature(orderID, paymentID, signature string) bool
		VerifyWebhookSignature(body []byte, signature string) bool
	}

	// Recorder records intent state transitions (metrics).
	Recorder interface {
		RecordTransition(strategy, from, to string)
	}
)

func (s CheckoutSession) Paid() bool {
	return s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required"
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(string, string, string) {}
