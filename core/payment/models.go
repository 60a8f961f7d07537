package payment

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
)

// PaymentRecord statuses
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusRefunded  = "refunded"
	StatusFailed    = "failed"
)

// MinAmount is the minimum payable amount, in paise.
const MinAmount int64 = 100

var AllStatuses = []string{StatusPending, StatusCompleted, StatusRefunded, StatusFailed}

// PaymentRecord is the ledger entry of a payment. Amount (paise) is fixed at creation.
type PaymentRecord struct {
	ID              string      `json:"id" db:"id"`
	Status          string      `json:"status" db:"status"`
	UserID          string      `json:"userId" db:"user_id"`
	Timestamp       time.Time   `json:"timestamp" db:"created_at"`
	StripeSessionID null.String `json:"stripeSessionId" db:"stripe_session_id"`
	Amount          int64       `json:"amount" db:"amount"`
	Currency        string      `json:"currency" db:"currency"`
	IntentID        string      `json:"intentId" db:"intent_id"`
	Strategy        string      `json:"strategy" db:"strategy"`
	PlanID          string      `json:"planId" db:"plan_id"`
	UpdatedAt       time.Time   `json:"-" db:"updated_at"`
}

type Plan struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Amount     int64    `json:"amount"` // paise
	Days       int      `json:"days"`
	Strategies []string `json:"strategies"`
}

var Plans = []Plan{
	{ID: "weekly", Name: "Weekly", Amount: 500, Days: 7, Strategies: []string{StrategyManual}},
	{ID: "monthly", Name: "Monthly", Amount: 2900, Days: 30, Strategies: []string{StrategyStripe, StrategyRazorpay, StrategyManual}},
	{ID: "half-yearly", Name: "Half-Yearly", Amount: 9900, Days: 180, Strategies: []string{StrategyStripe, StrategyRazorpay, StrategyManual}},
}

func PlanByID(id string) (Plan, bool) {
	for _, p := range Plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

func (p Plan) supports(strategy string) bool {
	for _, s := range p.Strategies {
		if s == strategy {
			return true
		}
	}
	return false
}

type ShoppingItem struct {
	ProductName        string `json:"productName" validate:"required"`
	ProductDescription string `json:"productDescription"`
	Currency           string `json:"currency" validate:"required"`
	Quantity           int64  `json:"quantity" validate:"min=1"`
	PriceInCents       int64  `json:"priceInCents" validate:"min=0"`
}

// NewCheckout contains the information needed to open a Stripe checkout session.
type NewCheckout struct {
	PlanID     string         `json:"planId"`
	Items      []ShoppingItem `json:"items" validate:"required,min=1,dive"`
	SuccessURL string         `json:"successUrl" validate:"required,url"`
	CancelURL  string         `json:"cancelUrl" validate:"required,url"`
}

func (nc *NewCheckout) Validate(validate *validator.Validate) error {
	nc.PlanID = core.CleanString(nc.PlanID)
	if err := validate.Struct(nc); err != nil {
		return err
	}
	if nc.Total() < MinAmount {
		return core.NewValidationError(ErrAmountTooLow, core.FieldError{Field: "items", Error: ErrAmountTooLow.Error()})
	}
	return nil
}

// Total is the amount of the checkout, in the smallest currency unit.
func (nc NewCheckout) Total() int64 {
	var total int64
	for _, item := range nc.Items {
		total += item.PriceInCents * item.Quantity
	}
	return total
}

type CheckoutResult struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	IntentID string `json:"intentId"`
}

// SessionStatus mirrors the status of a Stripe checkout session.
type SessionStatus struct {
	Kind          string `json:"kind"` // completed | failed
	UserPrincipal string `json:"userPrincipal,omitempty"`
	Response      string `json:"response,omitempty"`
	Error         string `json:"error,omitempty"`
}

type StripeConfiguration struct {
	SecretKey        string   `json:"secretKey" validate:"required"`
	AllowedCountries []string `json:"allowedCountries" validate:"omitempty,dive,len=2"`
}

type RazorpayOrder struct {
	IntentID string `json:"intentId"`
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId"`
}

type RazorpayConfirmation struct {
	IntentID  string `json:"intentId" validate:"required"`
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

type ManualConfirmation struct {
	IntentID  string `json:"intentId" validate:"required"`
	Reference string `json:"reference"` // UPI transaction reference, optional
}

type PlanSelection struct {
	PlanID string `json:"planId" validate:"required"`
}

type UPIDetails struct {
	MaskedUPIID string `json:"upiId"`
	PayeeName   string `json:"payeeName"`
	QRCodeURL   string `json:"qrCodeUrl"`
}

type BankAccount struct {
	AccountName   string `json:"accountName"`
	AccountNumber string `json:"accountNumber"`
	IFSC          string `json:"ifsc"`
	BankName      string `json:"bankName"`
}

type QueryFilter struct {
	UserID string `query:"user"`
	Status string `query:"status" validate:"omitempty,oneof=pending completed refunded failed"`
}

type StatusUpdate struct {
	Status string `json:"status" validate:"required,oneof=pending completed refunded failed"`
}

// IntentFilter applies AND operation on the non-zero fields.
type IntentFilter struct {
	States        []string
	Strategy      string
	UserID        string
	UpdatedBefore time.Time
}

type ReconcileReport struct {
	Activated  int `json:"activated"`
	Reconciled int `json:"reconciled"`
	Reported   int `json:"reported"`
	Failed     int `json:"failed"`
}
