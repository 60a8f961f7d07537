// Package testutil provides the fixtures shared by the tests: config, users & fake payment gateways.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/mail"
	"sync"
	"testing"
	"time"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
	"github.com/caffeinepub/diploma-smart-study-hub/services/logger"
)

// ValidSignature is the only signature accepted by FakeRazorpay.
const ValidSignature = "valid-signature"

// Config returns a TEST configuration that does not depend on the environment.
func Config() *core.Config {
	return &core.Config{
		AppName:          "DiplomaHub",
		Env:              "TEST",
		TestMode:         true,
		SecretKey:        "test-secret",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "DiplomaHub", Address: "noreply@test.in"},
		AdminEmails:      []mail.Address{{Name: "Admin", Address: "admin@test.in"}},
		Server: core.ServerConfig{
			Host:                      "localhost",
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			CORSOrigins:               []string{"*"},
		},
		Database: core.DatabaseConfig{Engine: "inmem"},
		Payments: core.PaymentsConfig{
			Currency:          "inr",
			StripeSecretKey:   "sk_test_123",
			StripeCountries:   []string{"IN"},
			UPIID:             "9392412728-2@axl",
			UPIPayeeName:      "DiplomaHub",
			BankAccountName:   "DiplomaHub",
			BankAccountNumber: "000123456789",
			BankIFSC:          "SBIN0000001",
			BankName:          "SBI",
			SupportPhone:      "9392412728",
			ManualReviewAge:   24 * time.Hour,
		},
		Storage: core.StorageConfig{MaxFileSize: 1 << 20, MaxVideoSize: 2 << 20},
	}
}

// Logger returns a silent logger.
func Logger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if role == "" {
		role = user.RoleUser
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// FakeStripe keeps the checkout sessions in memory; sessions are unpaid until Pay is called.
type FakeStripe struct {
	mu       sync.Mutex
	sessions map[string]payment.CheckoutSession
	Err      error // returned by every call when set
}

var _ payment.StripeGateway = (*FakeStripe)(nil)

func NewFakeStripe() *FakeStripe {
	return &FakeStripe{sessions: make(map[string]payment.CheckoutSession)}
}

func (fs *FakeStripe) CreateCheckoutSession(_ context.Context, _ string, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	if fs.Err != nil {
		return payment.CheckoutSession{}, fs.Err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var total int64
	for _, item := range req.Items {
		total += item.PriceInCents * item.Quantity
	}
	id := fmt.Sprintf("cs_test_%d", len(fs.sessions)+1)
	s := payment.CheckoutSession{
		ID:                id,
		URL:               "https://checkout.stripe.test/" + id,
		Status:            "open",
		PaymentStatus:     "unpaid",
		ClientReferenceID: req.UserID,
		AmountTotal:       total,
		Currency:          req.Items[0].Currency,
	}
	fs.sessions[id] = s
	return s, nil
}

func (fs *FakeStripe) GetCheckoutSession(_ context.Context, _, id string) (payment.CheckoutSession, error) {
	if fs.Err != nil {
		return payment.CheckoutSession{}, fs.Err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	s, ok := fs.sessions[id]
	if !ok {
		return payment.CheckoutSession{}, fmt.Errorf("no such checkout session: %s", id)
	}
	return s, nil
}

// Pay completes the session id.
func (fs *FakeStripe) Pay(id string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	s := fs.sessions[id]
	s.Status = "complete"
	s.PaymentStatus = "paid"
	s.PaymentIntentID = "pi_" + id
	fs.sessions[id] = s
}

// FakeRazorpay creates sequential orders & only accepts ValidSignature.
type FakeRazorpay struct {
	mu     sync.Mutex
	orders int
}

var _ payment.RazorpayGateway = (*FakeRazorpay)(nil)

func (fr *FakeRazorpay) KeyID() string { return "rzp_test_key" }

func (fr *FakeRazorpay) CreateOrder(_ context.Context, amount int64, currency, receipt string) (payment.Order, error) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.orders++
	return payment.Order{
		ID:       fmt.Sprintf("order_test_%d", fr.orders),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

func (fr *FakeRazorpay) VerifyPaymentSignature(_, _, signature string) bool {
	return signature == ValidSignature
}

func (fr *FakeRazorpay) VerifyWebhookSignature(_ []byte, signature string) bool {
	return signature == ValidSignature
}
