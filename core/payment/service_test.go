package payment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
	"github.com/caffeinepub/diploma-smart-study-hub/core/subscription"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
	"github.com/caffeinepub/diploma-smart-study-hub/services/email"
	"github.com/caffeinepub/diploma-smart-study-hub/storage/database/inmem"
	"github.com/caffeinepub/diploma-smart-study-hub/tests"
)

// flakySubs fails every activation while fail is set.
type flakySubs struct {
	subscription.ServiceInterface
	mu   sync.Mutex
	fail bool
}

func (fs *flakySubs) setFail(fail bool) {
	fs.mu.Lock()
	fs.fail = fail
	fs.mu.Unlock()
}

func (fs *flakySubs) Activate(ctx context.Context, userID, source string) (subscription.Subscription, error) {
	fs.mu.Lock()
	fail := fs.fail
	fs.mu.Unlock()
	if fail {
		return subscription.Subscription{}, errors.New("subscription store unavailable")
	}
	return fs.ServiceInterface.Activate(ctx, userID, source)
}

type transitionLog struct {
	mu    sync.Mutex
	steps []string
}

func (tl *transitionLog) RecordTransition(strategy, from, to string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.steps = append(tl.steps, strategy+":"+from+">"+to)
}

func (tl *transitionLog) count() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return len(tl.steps)
}

type paymentEnv struct {
	conf     *core.Config
	svc      *payment.Service
	repo     payment.Repository
	subs     *flakySubs
	stripe   *testutil.FakeStripe
	mailSvc  *emailsvc.ConsoleServiceMock
	recorder *transitionLog
	student  user.User
	other    user.User
}

func setup(t *testing.T, mutate ...func(*core.Config)) *paymentEnv {
	t.Helper()
	conf := testutil.Config()
	for _, fn := range mutate {
		fn(conf)
	}
	logger := testutil.Logger(conf)

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	settingsRepo := inmemdb.NewSettingsRepository(db)
	repo := inmemdb.NewPaymentRepository(db)

	env := &paymentEnv{
		conf:     conf,
		repo:     repo,
		subs:     &flakySubs{ServiceInterface: subscription.NewService(inmemdb.NewSubscriptionRepository(db))},
		stripe:   testutil.NewFakeStripe(),
		mailSvc:  emailsvc.NewConsoleServiceMock(conf, logger),
		recorder: new(transitionLog),
	}
	env.svc = payment.NewService(
		conf, logger, repo, settingsRepo,
		env.subs, user.NewService(usrRepo, settingsRepo),
		payment.Gateways{Stripe: env.stripe, Razorpay: new(testutil.FakeRazorpay)},
		env.mailSvc, env.recorder,
	)
	env.student = testutil.CreateUser(t, usrRepo, "Asha", "asha", "asha@test.in", "pwd", user.RoleUser, true)
	env.other = testutil.CreateUser(t, usrRepo, "Kiran", "kiran", "kiran@test.in", "pwd", user.RoleUser, true)
	return env
}

func (env *paymentEnv) isActive(t *testing.T, userID string) bool {
	active, err := env.subs.IsActive(context.Background(), userID)
	require.NoError(t, err)
	return active
}

func (env *paymentEnv) record(t *testing.T, intentID string) payment.PaymentRecord {
	p, err := env.repo.GetPaymentByIntent(context.Background(), intentID)
	require.NoError(t, err)
	return p
}

func (env *paymentEnv) subjects() []string {
	var subjects []string
	for _, msg := range env.mailSvc.SentMessages() {
		subjects = append(subjects, msg.Subject)
	}
	return subjects
}

func monthlyCheckout() payment.NewCheckout {
	return payment.NewCheckout{
		PlanID: "monthly",
		Items: []payment.ShoppingItem{
			{ProductName: "Monthly plan", Currency: "INR", Quantity: 1, PriceInCents: 2900},
		},
		SuccessURL: "http://localhost:3000/payment-success",
		CancelURL:  "http://localhost:3000/payment-failure",
	}
}

func TestService_stripeFlow(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	res, err := env.svc.CreateCheckoutSession(ctx, env.student.ID, monthlyCheckout())
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", res.ID)

	in, err := env.svc.GetIntent(ctx, res.IntentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StateInitiated, in.State)
	assert.Equal(t, "cs_test_1", in.ProcessorRef.String)
	assert.Equal(t, int64(2900), in.Amount)
	assert.Equal(t, "inr", in.Currency)
	assert.Equal(t, payment.StatusPending, env.record(t, in.ID).Status)

	// not paid yet
	ok, err := env.svc.FinalizeStripeCheckout(ctx, env.student.ID, res.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, env.isActive(t, env.student.ID))

	env.stripe.Pay(res.ID)

	ok, err = env.svc.FinalizeStripeCheckout(ctx, env.other.ID, res.ID)
	require.NoError(t, err)
	assert.False(t, ok, "the session belongs to somebody else")

	ok, err = env.svc.FinalizeStripeCheckout(ctx, env.student.ID, "cs_unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.svc.FinalizeStripeCheckout(ctx, env.student.ID, res.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, env.isActive(t, env.student.ID))

	in, err = env.svc.GetIntent(ctx, res.IntentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StateBackendConfirmed, in.State)
	assert.True(t, in.Verified)
	assert.Equal(t, "pi_cs_test_1", in.ProcessorPaymentID.String)
	rec := env.record(t, in.ID)
	assert.Equal(t, payment.StatusCompleted, rec.Status)
	assert.Equal(t, "cs_test_1", rec.StripeSessionID.String)

	// replays are idempotent
	transitions := env.recorder.count()
	ok, err = env.svc.FinalizeStripeCheckout(ctx, env.student.ID, res.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, transitions, env.recorder.count())
	assert.Equal(t, []string{"Your DiplomaHub subscription is active"}, env.subjects())

	status, err := env.svc.StripeSessionStatus(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Kind)
	assert.Equal(t, env.student.ID, status.UserPrincipal)
}

func TestService_stripeGatewayFailure(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	env.stripe.Err = errors.New("stripe is down")

	_, err := env.svc.CreateCheckoutSession(ctx, env.student.ID, monthlyCheckout())
	require.Error(t, err)

	intents, err := env.svc.QueryIntents(ctx, payment.IntentFilter{UserID: env.student.ID})
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, payment.StateFailed, intents[0].State)
	assert.Equal(t, "stripe is down", intents[0].LastError.String)

	status, err := env.svc.StripeSessionStatus(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, "failed", status.Kind)
}

func TestService_stripeConfiguration(t *testing.T) {
	env := setup(t, func(conf *core.Config) { conf.Payments.StripeSecretKey = "" })
	ctx := context.Background()

	configured, err := env.svc.IsStripeConfigured(ctx)
	require.NoError(t, err)
	assert.False(t, configured)
	_, err = env.svc.CreateCheckoutSession(ctx, env.student.ID, monthlyCheckout())
	assert.Equal(t, payment.ErrStripeNotConfigured, pkgerrors.Cause(err))

	require.NoError(t, env.svc.SetStripeConfiguration(ctx, payment.StripeConfiguration{
		SecretKey:        " sk_test_admin ",
		AllowedCountries: []string{"in", " us"},
	}))
	configured, err = env.svc.IsStripeConfigured(ctx)
	require.NoError(t, err)
	assert.True(t, configured)
	_, err = env.svc.CreateCheckoutSession(ctx, env.student.ID, monthlyCheckout())
	assert.NoError(t, err)
}

func TestService_stripePlanPrice(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		planID string
		items  []payment.ShoppingItem
	}{
		{name: "underpaid half-yearly", planID: "half-yearly", items: []payment.ShoppingItem{
			{ProductName: "Half-yearly plan", Currency: "INR", Quantity: 1, PriceInCents: 100},
		}},
		{name: "overpaid monthly", planID: "monthly", items: []payment.ShoppingItem{
			{ProductName: "Monthly plan", Currency: "INR", Quantity: 2, PriceInCents: 2900},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t)
			nc := monthlyCheckout()
			nc.PlanID, nc.Items = tt.planID, tt.items

			_, err := env.svc.CreateCheckoutSession(ctx, env.student.ID, nc)
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.Equal(t, "items", vErr.Fields[0].Field)

			intents, err := env.svc.QueryIntents(ctx, payment.IntentFilter{UserID: env.student.ID})
			require.NoError(t, err)
			assert.Empty(t, intents)
		})
	}

	t.Run("priced like the plan", func(t *testing.T) {
		env := setup(t)
		nc := monthlyCheckout()
		nc.PlanID = "half-yearly"
		nc.Items = []payment.ShoppingItem{{ProductName: "Half-yearly plan", Currency: "INR", Quantity: 1, PriceInCents: 9900}}
		res, err := env.svc.CreateCheckoutSession(ctx, env.student.ID, nc)
		require.NoError(t, err)
		in, err := env.svc.GetIntent(ctx, res.IntentID)
		require.NoError(t, err)
		assert.Equal(t, int64(9900), in.Amount)
	})
}

func TestService_stripeReplayAfterDeactivation(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	res, err := env.svc.CreateCheckoutSession(ctx, env.student.ID, monthlyCheckout())
	require.NoError(t, err)
	env.stripe.Pay(res.ID)
	ok, err := env.svc.FinalizeStripeCheckout(ctx, env.student.ID, res.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = env.svc.AdminDeactivate(ctx, env.student.ID)
	require.NoError(t, err)

	ok, err = env.svc.FinalizeStripeCheckout(ctx, env.student.ID, res.ID)
	require.NoError(t, err)
	assert.False(t, ok, "the subscription was deactivated")
	assert.False(t, env.isActive(t, env.student.ID))
}

func TestService_razorpayFlow(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	order, err := env.svc.CreateRazorpayOrder(ctx, env.student.ID, "monthly")
	require.NoError(t, err)
	assert.Equal(t, "order_test_1", order.OrderID)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, int64(2900), order.Amount)
	assert.Equal(t, "rzp_test_key", order.KeyID)

	confirmation := func(orderID, signature string) payment.RazorpayConfirmation {
		return payment.RazorpayConfirmation{IntentID: order.IntentID, OrderID: orderID, PaymentID: "pay_1", Signature: signature}
	}

	tests := []struct {
		name    string
		userID  string
		rc      payment.RazorpayConfirmation
		wantErr error
	}{
		{name: "forged signature", userID: env.student.ID, rc: confirmation(order.OrderID, "forged"), wantErr: payment.ErrInvalidSignature},
		{name: "other order", userID: env.student.ID, rc: confirmation("order_other", testutil.ValidSignature), wantErr: payment.ErrInvalidSignature},
		{name: "other user", userID: env.other.ID, rc: confirmation(order.OrderID, testutil.ValidSignature), wantErr: payment.ErrIntentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.ConfirmRazorpay(ctx, tt.userID, tt.rc)
			assert.Equal(t, tt.wantErr, pkgerrors.Cause(err))
		})
	}
	assert.False(t, env.isActive(t, env.student.ID))

	in, err := env.svc.ConfirmRazorpay(ctx, env.student.ID, confirmation(order.OrderID, testutil.ValidSignature))
	require.NoError(t, err)
	assert.Equal(t, payment.StateBackendConfirmed, in.State)
	assert.Equal(t, "pay_1", in.ProcessorPaymentID.String)
	assert.True(t, env.isActive(t, env.student.ID))
	assert.Equal(t, payment.StatusCompleted, env.record(t, in.ID).Status)

	transitions := env.recorder.count()
	in, err = env.svc.ConfirmRazorpay(ctx, env.student.ID, confirmation(order.OrderID, testutil.ValidSignature))
	require.NoError(t, err)
	assert.True(t, in.Activated())
	assert.Equal(t, transitions, env.recorder.count())
}

func TestService_razorpayActivationRetriedByReconciler(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	order, err := env.svc.CreateRazorpayOrder(ctx, env.student.ID, "half-yearly")
	require.NoError(t, err)

	env.subs.setFail(true)
	in, err := env.svc.ConfirmRazorpay(ctx, env.student.ID, payment.RazorpayConfirmation{
		IntentID: order.IntentID, OrderID: order.OrderID, PaymentID: "pay_1", Signature: testutil.ValidSignature,
	})
	require.NoError(t, err, "a verified payment is not an error even if the activation failed")
	assert.Equal(t, payment.StateProcessorConfirmed, in.State)
	assert.False(t, in.Activated())
	assert.False(t, env.isActive(t, env.student.ID))

	stored, err := env.svc.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.LastError.String, "subscription store unavailable")

	report, err := env.svc.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, payment.ReconcileReport{Failed: 1}, report)

	env.subs.setFail(false)
	report, err = env.svc.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, payment.ReconcileReport{Activated: 1, Reconciled: 1}, report)
	assert.True(t, env.isActive(t, env.student.ID))

	stored, err = env.svc.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StateReconciled, stored.State)
	assert.Equal(t, "system", stored.ReconciledBy.String)
	assert.False(t, stored.LastError.Valid)
}

func TestService_HandleRazorpayWebhook(t *testing.T) {
	event := func(name, orderID string) []byte {
		return []byte(`{"event":"` + name + `","payload":{"payment":{"entity":{"id":"pay_9","order_id":"` + orderID + `","status":"captured"}}}}`)
	}
	ctx := context.Background()

	t.Run("invalid signature", func(t *testing.T) {
		env := setup(t)
		err := env.svc.HandleRazorpayWebhook(ctx, event("payment.captured", "order_test_1"), "forged")
		assert.Equal(t, payment.ErrInvalidSignature, err)
	})

	t.Run("unknown order and event are ignored", func(t *testing.T) {
		env := setup(t)
		assert.NoError(t, env.svc.HandleRazorpayWebhook(ctx, event("payment.captured", "order_nope"), testutil.ValidSignature))
		assert.NoError(t, env.svc.HandleRazorpayWebhook(ctx, event("refund.created", "order_nope"), testutil.ValidSignature))
	})

	t.Run("malformed payload", func(t *testing.T) {
		env := setup(t)
		err := env.svc.HandleRazorpayWebhook(ctx, []byte("{"), testutil.ValidSignature)
		var vErr *core.ValidationError
		assert.True(t, errors.As(err, &vErr))
	})

	t.Run("captured", func(t *testing.T) {
		env := setup(t)
		order, err := env.svc.CreateRazorpayOrder(ctx, env.student.ID, "monthly")
		require.NoError(t, err)

		require.NoError(t, env.svc.HandleRazorpayWebhook(ctx, event("payment.captured", order.OrderID), testutil.ValidSignature))
		in, err := env.svc.GetIntent(ctx, order.IntentID)
		require.NoError(t, err)
		assert.Equal(t, payment.StateBackendConfirmed, in.State)
		assert.Equal(t, "pay_9", in.ProcessorPaymentID.String)
		assert.True(t, env.isActive(t, env.student.ID))
	})

	t.Run("failed", func(t *testing.T) {
		env := setup(t)
		order, err := env.svc.CreateRazorpayOrder(ctx, env.student.ID, "monthly")
		require.NoError(t, err)

		require.NoError(t, env.svc.HandleRazorpayWebhook(ctx, event("payment.failed", order.OrderID), testutil.ValidSignature))
		in, err := env.svc.GetIntent(ctx, order.IntentID)
		require.NoError(t, err)
		assert.Equal(t, payment.StateFailed, in.State)
		assert.Equal(t, payment.StatusFailed, env.record(t, in.ID).Status)
		assert.False(t, env.isActive(t, env.student.ID))
	})
}

func TestService_manualFlow(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	payment.NowFunc = func() time.Time { return now }
	defer func() { payment.NowFunc = time.Now }()

	in, err := env.svc.InitiateManual(ctx, env.student.ID, "weekly")
	require.NoError(t, err)
	assert.Equal(t, int64(500), in.Amount)
	assert.Contains(t, in.ProcessorRef.String, "manual_")

	_, err = env.svc.ConfirmManual(ctx, env.other.ID, payment.ManualConfirmation{IntentID: in.ID})
	assert.Equal(t, payment.ErrIntentNotFound, pkgerrors.Cause(err))

	in, err = env.svc.ConfirmManual(ctx, env.student.ID, payment.ManualConfirmation{IntentID: in.ID, Reference: " UTR123 "})
	require.NoError(t, err)
	assert.Equal(t, payment.StateBackendConfirmed, in.State)
	assert.False(t, in.Verified)
	assert.Equal(t, "UTR123", in.ProcessorPaymentID.String)
	assert.True(t, env.isActive(t, env.student.ID))
	assert.ElementsMatch(t, []string{"Your DiplomaHub subscription is active", "Payment awaiting reconciliation"}, env.subjects())

	// too recent to be reported
	report, err := env.svc.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, payment.ReconcileReport{}, report)

	now = now.Add(env.conf.Payments.ManualReviewAge + time.Minute)
	report, err = env.svc.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, payment.ReconcileReport{Reported: 1}, report)

	// reported again only after another review age
	report, err = env.svc.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, payment.ReconcileReport{}, report)

	in, err = env.svc.Reconcile(ctx, "admin-1", in.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StateReconciled, in.State)
	assert.Equal(t, "admin-1", in.ReconciledBy.String)

	_, err = env.svc.Reconcile(ctx, "admin-1", in.ID)
	assert.Equal(t, payment.ErrInvalidTransition, pkgerrors.Cause(err))
}

func TestService_manualSessionFinalizedAsStripe(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	in, err := env.svc.InitiateManual(ctx, env.student.ID, "monthly")
	require.NoError(t, err)

	ok, err := env.svc.FinalizeStripeCheckout(ctx, env.student.ID, in.ProcessorRef.String)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, env.isActive(t, env.student.ID))
}

func TestService_plans(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{name: "unknown plan", call: func() error {
			_, err := env.svc.InitiateManual(ctx, env.student.ID, "lifetime")
			return err
		}},
		{name: "weekly plan with razorpay", call: func() error {
			_, err := env.svc.CreateRazorpayOrder(ctx, env.student.ID, "weekly")
			return err
		}},
		{name: "weekly plan with stripe", call: func() error {
			nc := monthlyCheckout()
			nc.PlanID = "weekly"
			_, err := env.svc.CreateCheckoutSession(ctx, env.student.ID, nc)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var vErr *core.ValidationError
			assert.True(t, errors.As(tt.call(), &vErr))
		})
	}

	intents, err := env.svc.QueryIntents(ctx, payment.IntentFilter{UserID: env.student.ID})
	require.NoError(t, err)
	assert.Empty(t, intents)
}

func TestService_adminActivation(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.svc.AdminActivate(ctx, "admin-1", "nobody")
	assert.Equal(t, user.ErrNotFound, pkgerrors.Cause(err))

	in, err := env.svc.AdminActivate(ctx, "admin-1", env.student.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StrategyAdmin, in.Strategy)
	assert.Equal(t, payment.StateReconciled, in.State)
	assert.Equal(t, "admin-1", in.ReconciledBy.String)
	assert.True(t, env.isActive(t, env.student.ID))

	sub, err := env.svc.AdminDeactivate(ctx, env.student.ID)
	require.NoError(t, err)
	assert.False(t, sub.Active)
	assert.False(t, env.isActive(t, env.student.ID))

	_, err = env.svc.AdminDeactivate(ctx, "nobody")
	assert.Equal(t, user.ErrNotFound, pkgerrors.Cause(err))
}
