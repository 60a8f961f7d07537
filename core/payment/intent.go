package payment

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

// Strategies, ie. how the payment is confirmed.
const (
	StrategyStripe   = "stripe"
	StrategyRazorpay = "razorpay"
	StrategyManual   = "manual"
	StrategyAdmin    = "admin"
)

// Intent states
const (
	StateInitiated          = "initiated"
	StateProcessorConfirmed = "processor-confirmed"
	StateBackendConfirmed   = "backend-confirmed"
	StateReconciled         = "reconciled"
	StateFailed             = "failed"
)

var transitions = map[string][]string{
	StateInitiated:          {StateProcessorConfirmed, StateFailed},
	StateProcessorConfirmed: {StateBackendConfirmed},
	StateBackendConfirmed:   {StateReconciled},
}

// Intent tracks one attempt to pay for a subscription, whatever the strategy used.
// Confirmations are idempotent: they are keyed by the intent ID and only move the state forward.
type Intent struct {
	ID                 string      `json:"id" db:"id"`
	UserID             string      `json:"userId" db:"user_id"`
	Strategy           string      `json:"strategy" db:"strategy"`
	PlanID             string      `json:"planId" db:"plan_id"`
	Amount             int64       `json:"amount" db:"amount"`
	Currency           string      `json:"currency" db:"currency"`
	State              string      `json:"state" db:"state"`
	ProcessorRef       null.String `json:"processorRef" db:"processor_ref"` // stripe session ID | razorpay order ID | synthetic manual session ID
	ProcessorPaymentID null.String `json:"processorPaymentId" db:"processor_payment_id"`
	Verified           bool        `json:"verified" db:"verified"` // confirmed by the processor rather than asserted by the user
	LastError          null.String `json:"lastError" db:"last_error"`
	ReconciledBy       null.String `json:"reconciledBy" db:"reconciled_by"`
	CreatedAt          time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time   `json:"updatedAt" db:"updated_at"`
}

func (in Intent) Confirmed() bool {
	return in.State == StateProcessorConfirmed || in.Activated()
}

func (in Intent) Activated() bool {
	return in.State == StateBackendConfirmed || in.State == StateReconciled
}

// Terminal intents cannot move anymore.
func (in Intent) Terminal() bool {
	return in.State == StateReconciled || in.State == StateFailed
}

func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (in *Intent) transition(to string) error {
	if !CanTransition(in.State, to) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", in.State, to)
	}
	in.State = to
	return nil
}

// MaskUPIID hides the middle of a UPI ID: "9392412728-2@axl" -> "93924*****@axl".
func MaskUPIID(upiID string) string {
	parts := strings.Split(upiID, "@")
	if len(parts) != 2 {
		return "****@***"
	}
	local, domain := parts[0], parts[1]
	if len(local) <= 5 {
		return "*****@" + domain
	}
	n := len(local) - 5
	if n > 5 {
		n = 5
	}
	return local[:5] + strings.Repeat("*", n) + "@" + domain
}
