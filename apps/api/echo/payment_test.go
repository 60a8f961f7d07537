package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeinepub/diploma-smart-study-hub/core/access"
	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
	"github.com/caffeinepub/diploma-smart-study-hub/tests"
)

func Test_paymentApi_public(t *testing.T) {
	app := setup(t)

	tests := []httpTest{
		{name: "plans", path: "/v1/payments/plans", wantData: marshalObj(t, payment.Plans)},
		{
			name: "upi", path: "/v1/payments/upi",
			wantData: marshalObj(t, payment.UPIDetails{MaskedUPIID: "93924*****@axl", PayeeName: "DiplomaHub"}),
		},
		{
			name: "bank", path: "/v1/payments/bank",
			wantData: marshalObj(t, payment.BankAccount{AccountName: "DiplomaHub", AccountNumber: "000123456789", IFSC: "SBIN0000001", BankName: "SBI"}),
		},
		{name: "stripe configured", path: "/v1/payments/stripe/configured", wantData: marshalObj(t, ConfiguredResponse{Configured: true})},
		{name: "withdrawal contact", path: "/v1/withdrawals/contact", wantData: marshalObj(t, ContactResponse{PhoneNumber: "9392412728"})},
	}
	runTests(t, app, tests)
}

func Test_paymentApi_manual(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, "student", "", "", true)
	other := app.createUser(t, "other", "", "", true)
	admin := app.createUser(t, "admin", "", user.RoleAdmin, true)
	token := app.token(t, usr)
	adminToken := app.token(t, admin)

	tests := []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/payments/manual", body: []byte(`{"planId": "weekly"}`), wantCode: http.StatusUnauthorized},
		{name: "plan required", method: http.MethodPost, path: "/v1/payments/manual", body: []byte(`{}`), token: token, wantCode: http.StatusBadRequest},
		{
			name: "unknown plan", method: http.MethodPost, path: "/v1/payments/manual", body: []byte(`{"planId": "lifetime"}`), token: token,
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"planId": payment.ErrUnknownPlan.Error()}),
		},
		{name: "access before", path: "/v1/access", token: token, wantData: marshalObj(t, access.Decision{Authenticated: true})},
	}
	runTests(t, app, tests)

	rec := app.run(t, httpTest{method: http.MethodPost, path: "/v1/payments/manual", body: []byte(`{"planId": "weekly"}`), token: token})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var in payment.Intent
	unmarshalObj(t, rec.Body.Bytes(), &in)
	assert.Equal(t, payment.StateInitiated, in.State)
	assert.Equal(t, int64(500), in.Amount)

	confirm := marshalObj(t, payment.ManualConfirmation{IntentID: in.ID, Reference: "UPI123"})
	tests = []httpTest{
		{name: "someone else's intent", path: "/v1/payments/intents/" + in.ID, token: app.token(t, other), wantCode: http.StatusNotFound},
		{name: "confirm: someone else's intent", method: http.MethodPost, path: "/v1/payments/manual/confirm", body: confirm, token: app.token(t, other), wantCode: http.StatusNotFound},
	}
	runTests(t, app, tests)

	for i := 0; i < 2; i++ { // idempotent
		rec = app.run(t, httpTest{method: http.MethodPost, path: "/v1/payments/manual/confirm", body: confirm, token: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshalObj(t, rec.Body.Bytes(), &in)
		assert.Equal(t, payment.StateBackendConfirmed, in.State)
		assert.False(t, in.Verified)
	}

	tests = []httpTest{
		{
			name: "access after", path: "/v1/access", token: token,
			wantData: marshalObj(t, access.Decision{Authenticated: true, IsSubscribed: true, HasAccess: true}),
		},
		{name: "subscription", path: "/v1/subscription", token: token, wantData: marshalObj(t, SubscriptionStatus{Active: true})},
		{name: "lessons unlocked", path: "/v1/lessons", token: token, wantData: []byte(`[]`)},
		{name: "intents: admin required", path: "/v1/payments/intents", token: token, wantCode: http.StatusForbidden},
	}
	runTests(t, app, tests)

	t.Run("ledger", func(t *testing.T) {
		rec := app.run(t, httpTest{path: "/v1/payments/mine", token: token})
		require.Equal(t, http.StatusOK, rec.Code)
		var records []payment.PaymentRecord
		unmarshalObj(t, rec.Body.Bytes(), &records)
		require.Len(t, records, 1)
		assert.Equal(t, payment.StatusCompleted, records[0].Status)
		assert.Equal(t, in.ID, records[0].IntentID)

		rec = app.run(t, httpTest{path: "/v1/payments/" + records[0].ID, token: app.token(t, other)})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = app.run(t, httpTest{path: "/v1/users/" + usr.ID + "/payments", token: adminToken})
		checkCodeAndData(t, httpTest{wantData: marshalObj(t, records)}, rec)

		runTests(t, app, []httpTest{
			{name: "all: by status", path: "/v1/payments?status=completed", token: adminToken, wantData: marshalObj(t, records)},
			{name: "all: none pending", path: "/v1/payments?status=pending", token: adminToken, wantData: []byte(`[]`)},
			{name: "all: invalid status", path: "/v1/payments?status=lol", token: adminToken, wantCode: http.StatusBadRequest},
			{name: "all: malformed filter", path: "/v1/payments", body: []byte(`{"user":`), token: adminToken, wantCode: http.StatusBadRequest},
		})
	})

	t.Run("reconcile", func(t *testing.T) {
		rec := app.run(t, httpTest{path: "/v1/payments/intents?state=" + payment.StateBackendConfirmed, token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code)
		var intents []payment.Intent
		unmarshalObj(t, rec.Body.Bytes(), &intents)
		require.Len(t, intents, 1)

		rec = app.run(t, httpTest{method: http.MethodPost, path: "/v1/payments/intents/" + in.ID + "/reconcile", token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshalObj(t, rec.Body.Bytes(), &in)
		assert.Equal(t, payment.StateReconciled, in.State)
		assert.Equal(t, admin.ID, in.ReconciledBy.String)

		rec = app.run(t, httpTest{method: http.MethodPost, path: "/v1/payments/intents/" + in.ID + "/reconcile", token: adminToken})
		assert.Equal(t, http.StatusConflict, rec.Code, "reconciled intents are terminal")
	})
}

func Test_paymentApi_stripe(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, "student", "", "", true)
	token := app.token(t, usr)

	checkout := payment.NewCheckout{
		PlanID:     "monthly",
		Items:      []payment.ShoppingItem{{ProductName: "Monthly", Currency: "inr", Quantity: 1, PriceInCents: 2900}},
		SuccessURL: "https://diplomahub.test/success",
		CancelURL:  "https://diplomahub.test/cancel",
	}
	tooLow := checkout
	tooLow.Items = []payment.ShoppingItem{{ProductName: "Monthly", Currency: "inr", Quantity: 1, PriceInCents: 10}}

	tests := []httpTest{
		{name: "amount too low", method: http.MethodPost, path: "/v1/payments/stripe/checkout", body: marshalObj(t, tooLow), token: token, wantCode: http.StatusBadRequest},
		{
			name: "finalize unknown session", method: http.MethodPost, path: "/v1/payments/stripe/finalize",
			body: []byte(`{"sessionId": "cs_lol"}`), token: token, wantData: marshalObj(t, FinalizeResponse{Success: false}),
		},
	}
	runTests(t, app, tests)

	rec := app.run(t, httpTest{method: http.MethodPost, path: "/v1/payments/stripe/checkout", body: marshalObj(t, checkout), token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res payment.CheckoutResult
	unmarshalObj(t, rec.Body.Bytes(), &res)
	require.NotEmpty(t, res.ID)

	finalize := marshalObj(t, FinalizeRequest{SessionID: res.ID})
	rec = app.run(t, httpTest{method: http.MethodPost, path: "/v1/payments/stripe/finalize", body: finalize, token: token})
	checkCodeAndData(t, httpTest{wantData: marshalObj(t, FinalizeResponse{Success: false})}, rec)

	app.stripe.Pay(res.ID)
	rec = app.run(t, httpTest{method: http.MethodPost, path: "/v1/payments/stripe/finalize", body: finalize, token: token})
	checkCodeAndData(t, httpTest{wantData: marshalObj(t, FinalizeResponse{Success: true})}, rec)

	rec = app.run(t, httpTest{path: "/v1/payments/stripe/sessions/" + res.ID, token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	var status payment.SessionStatus
	unmarshalObj(t, rec.Body.Bytes(), &status)
	assert.Equal(t, "completed", status.Kind)
	assert.Equal(t, usr.ID, status.UserPrincipal)

	rec = app.run(t, httpTest{path: "/v1/subscription", token: token})
	checkCodeAndData(t, httpTest{wantData: marshalObj(t, SubscriptionStatus{Active: true})}, rec)
}

func Test_paymentApi_razorpay(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, "student", "", "", true)
	token := app.token(t, usr)

	rec := app.run(t, httpTest{method: http.MethodPost, path: "/v1/payments/razorpay/orders", body: []byte(`{"planId": "weekly"}`), token: token})
	require.Equal(t, http.StatusBadRequest, rec.Code, "weekly plan is manual only")

	rec = app.run(t, httpTest{method: http.MethodPost, path: "/v1/payments/razorpay/orders", body: []byte(`{"planId": "monthly"}`), token: token})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order payment.RazorpayOrder
	unmarshalObj(t, rec.Body.Bytes(), &order)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, "rzp_test_key", order.KeyID)

	conf := payment.RazorpayConfirmation{IntentID: order.IntentID, OrderID: order.OrderID, PaymentID: "pay_1", Signature: "forged"}
	rec = app.run(t, httpTest{method: http.MethodPost, path: "/v1/payments/razorpay/confirm", body: marshalObj(t, conf), token: token})
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: payment.ErrInvalidSignature.Error()})}, rec)

	conf.Signature = testutil.ValidSignature
	rec = app.run(t, httpTest{method: http.MethodPost, path: "/v1/payments/razorpay/confirm", body: marshalObj(t, conf), token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var in payment.Intent
	unmarshalObj(t, rec.Body.Bytes(), &in)
	assert.Equal(t, payment.StateBackendConfirmed, in.State)
	assert.True(t, in.Verified)
}

func Test_paymentApi_razorpayWebhook(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, "student", "", "", true)
	token := app.token(t, usr)

	rec := app.run(t, httpTest{method: http.MethodPost, path: "/v1/payments/razorpay/orders", body: []byte(`{"planId": "monthly"}`), token: token})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order payment.RazorpayOrder
	unmarshalObj(t, rec.Body.Bytes(), &order)

	body := []byte(`{"event": "payment.captured", "payload": {"payment": {"entity": {"id": "pay_9", "order_id": "` + order.OrderID + `", "status": "captured"}}}}`)
	webhook := func(signature string) int {
		req, rec := newAuthRequest(http.MethodPost, "/v1/webhooks/razorpay", "", body)
		req.Header.Set(razorpaySignatureHeader, signature)
		app.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusBadRequest, webhook("forged"))
	rec = app.run(t, httpTest{path: "/v1/subscription", token: token})
	checkCodeAndData(t, httpTest{wantData: marshalObj(t, SubscriptionStatus{Active: false})}, rec)

	assert.Equal(t, http.StatusOK, webhook(testutil.ValidSignature))
	assert.Equal(t, http.StatusOK, webhook(testutil.ValidSignature), "replays are ignored")
	rec = app.run(t, httpTest{path: "/v1/subscription", token: token})
	checkCodeAndData(t, httpTest{wantData: marshalObj(t, SubscriptionStatus{Active: true})}, rec)
}

func Test_subscriptionApi_admin(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, "student", "", "", true)
	admin := app.createUser(t, "admin", "", user.RoleAdmin, true)
	adminToken := app.token(t, admin)
	token := app.token(t, usr)

	tests := []httpTest{
		{name: "admin has access", path: "/v1/access", token: adminToken, wantData: marshalObj(t, access.Decision{Authenticated: true, IsAdmin: true, HasAccess: true})},
		{name: "guest", path: "/v1/access", wantData: marshalObj(t, access.Decision{})},
		{name: "activate: admin required", method: http.MethodPost, path: "/v1/users/" + usr.ID + "/activate", token: token, wantCode: http.StatusForbidden},
		{name: "activate: unknown user", method: http.MethodPost, path: "/v1/users/lol/activate", token: adminToken, wantCode: http.StatusNotFound},
		{name: "activate", method: http.MethodPost, path: "/v1/users/" + usr.ID + "/activate", token: adminToken},
		{name: "active", path: "/v1/subscription", token: token, wantData: marshalObj(t, SubscriptionStatus{Active: true})},
		{name: "deactivate", method: http.MethodPost, path: "/v1/users/" + usr.ID + "/deactivate", token: adminToken},
		{name: "inactive", path: "/v1/subscription", token: token, wantData: marshalObj(t, SubscriptionStatus{Active: false})},
		{name: "locked again", path: "/v1/lessons", token: token, wantCode: http.StatusPaymentRequired},
		{name: "active subscriptions", path: "/v1/subscriptions/active", token: adminToken, wantData: []byte(`[]`)},
	}
	runTests(t, app, tests)
}

func Test_profileApi(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, "student", "", "", true)
	admin := app.createUser(t, "admin", "", user.RoleAdmin, true)
	token := app.token(t, usr)

	p := map[string]string{"branch": "EEE", "name": "Student", "email": "STUDENT@test.in", "rollNumber": "21EE001"}
	saved := map[string]interface{}{"branch": "EEE", "name": "Student", "email": "student@test.in", "rollNumber": "21EE001", "profilePicture": nil}

	tests := []httpTest{
		{name: "none yet", path: "/v1/profile", token: token, wantData: []byte(`null`)},
		{name: "auth required", method: http.MethodPut, path: "/v1/profile", body: marshalObj(t, p), wantCode: http.StatusUnauthorized},
		{name: "invalid", method: http.MethodPut, path: "/v1/profile", body: []byte(`{"branch": "EEE"}`), token: token, wantCode: http.StatusBadRequest},
		{name: "save", method: http.MethodPut, path: "/v1/profile", body: marshalObj(t, p), token: token, wantData: marshalObj(t, saved)},
		{name: "own", path: "/v1/profile", token: token, wantData: marshalObj(t, saved)},
		{name: "by admin", path: "/v1/users/" + usr.ID + "/profile", token: app.token(t, admin), wantData: marshalObj(t, saved)},
		{name: "by user", path: "/v1/users/" + usr.ID + "/profile", token: token, wantCode: http.StatusForbidden},
	}
	runTests(t, app, tests)
}

func Test_withdrawalApi(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, "student", "", "", true)
	other := app.createUser(t, "other", "", "", true)
	admin := app.createUser(t, "admin", "", user.RoleAdmin, true)
	token := app.token(t, usr)
	adminToken := app.token(t, admin)

	tests := []httpTest{
		{
			name: "amount too low", method: http.MethodPost, path: "/v1/withdrawals", token: token,
			body: []byte(`{"amount": 49.99, "phoneNumber": "9876543210"}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"amount": "amount must be at least 50"}),
		},
		{
			name: "invalid phone", method: http.MethodPost, path: "/v1/withdrawals", token: token,
			body: []byte(`{"amount": 100, "phoneNumber": "98765"}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"phoneNumber": "phone number must be exactly 10 digits"}),
		},
		{
			name: "amount required", method: http.MethodPost, path: "/v1/withdrawals", token: token,
			body: []byte(`{"phoneNumber": "9876543210"}`), wantCode: http.StatusBadRequest,
		},
	}
	runTests(t, app, tests)

	rec := app.run(t, httpTest{method: http.MethodPost, path: "/v1/withdrawals", token: token, body: []byte(`{"amount": 50, "phoneNumber": " 9876543210 "}`)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var wr struct {
		ID          string  `json:"id"`
		Status      string  `json:"status"`
		PhoneNumber string  `json:"phoneNumber"`
		Amount      float64 `json:"amount"`
	}
	unmarshalObj(t, rec.Body.Bytes(), &wr)
	assert.Equal(t, "pending", wr.Status)
	assert.Equal(t, "9876543210", wr.PhoneNumber)
	assert.Equal(t, 50.0, wr.Amount)

	tests = []httpTest{
		{name: "owner", path: "/v1/withdrawals/" + wr.ID, token: token},
		{name: "someone else", path: "/v1/withdrawals/" + wr.ID, token: app.token(t, other), wantCode: http.StatusNotFound},
		{name: "list: admin required", path: "/v1/withdrawals", token: token, wantCode: http.StatusForbidden},
		{name: "mine: other", path: "/v1/withdrawals/mine", token: app.token(t, other), wantData: []byte(`[]`)},
		{
			name: "status: unknown", method: http.MethodPut, path: "/v1/withdrawals/" + wr.ID + "/status",
			body: []byte(`{"status": "lol"}`), token: adminToken, wantCode: http.StatusBadRequest,
		},
		{
			name: "status: approved", method: http.MethodPut, path: "/v1/withdrawals/" + wr.ID + "/status",
			body: []byte(`{"status": "approved"}`), token: adminToken,
		},
	}
	runTests(t, app, tests)

	sent := app.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "student@test.in", sent[0].To[0].Address)
}
