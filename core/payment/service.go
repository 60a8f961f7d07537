// Package payment implements the subscription payment flows (Stripe, Razorpay, manual UPI & admin activation)
// on top of a single PaymentIntent state machine.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/settings"
	"github.com/caffeinepub/diploma-smart-study-hub/core/subscription"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
)

var (
	// errors
	ErrNotFound              = core.NewNotFoundError("payment")
	ErrIntentNotFound        = core.NewNotFoundError("payment intent")
	ErrInvalidTransition     = errors.New("invalid payment intent transition")
	ErrStaleIntent           = errors.New("payment intent was modified concurrently")
	ErrStripeNotConfigured   = errors.New("Stripe needs to be first configured")
	ErrRazorpayNotConfigured = errors.New("Razorpay is not configured")
	ErrInvalidSignature      = errors.New("invalid payment signature")
	ErrUnknownPlan           = errors.New("unknown plan")
	ErrStrategyNotSupported  = errors.New("this plan cannot be paid with this method")
	ErrPlanAmountMismatch    = errors.New("the items total does not match the plan price")
	ErrAmountTooLow          = fmt.Errorf("amount must be at least %d paise", MinAmount)

	NowFunc = time.Now // mockable
)

const systemReconciler = "system"

type (
	Repository interface {
		CreateIntent(ctx context.Context, in Intent) (Intent, error)
		GetIntent(ctx context.Context, id string) (Intent, error)
		GetIntentByProcessorRef(ctx context.Context, ref string) (Intent, error)
		// UpdateIntent saves the intent only if its stored state is still fromState, else returns ErrStaleIntent.
		UpdateIntent(ctx context.Context, in Intent, fromState string) (Intent, error)
		QueryIntents(ctx context.Context, filter IntentFilter) ([]Intent, error)

		CreatePayment(ctx context.Context, p PaymentRecord) (PaymentRecord, error)
		GetPayment(ctx context.Context, id string) (PaymentRecord, error)
		GetPaymentByIntent(ctx context.Context, intentID string) (PaymentRecord, error)
		// QueryPayments returns the matching records, most recent first.
		QueryPayments(ctx context.Context, filter QueryFilter) ([]PaymentRecord, error)
		UpdatePayment(ctx context.Context, p PaymentRecord) (PaymentRecord, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Gateways struct {
		Stripe   StripeGateway
		Razorpay RazorpayGateway // nil when Razorpay is not configured
	}

	ServiceInterface interface {
		Plans() []Plan
		IsStripeConfigured(ctx context.Context) (bool, error)
		SetStripeConfiguration(ctx context.Context, sc StripeConfiguration) error
		CreateCheckoutSession(ctx context.Context, userID string, nc NewCheckout) (CheckoutResult, error)
		FinalizeStripeCheckout(ctx context.Context, userID, sessionID string) (bool, error)
		StripeSessionStatus(ctx context.Context, sessionID string) (SessionStatus, error)

		CreateRazorpayOrder(ctx context.Context, userID, planID string) (RazorpayOrder, error)
		ConfirmRazorpay(ctx context.Context, userID string, rc RazorpayConfirmation) (Intent, error)
		HandleRazorpayWebhook(ctx context.Context, body []byte, signature string) error

		InitiateManual(ctx context.Context, userID, planID string) (Intent, error)
		ConfirmManual(ctx context.Context, userID string, mc ManualConfirmation) (Intent, error)

		AdminActivate(ctx context.Context, adminID, userID string) (Intent, error)
		AdminDeactivate(ctx context.Context, userID string) (subscription.Subscription, error)
		Reconcile(ctx context.Context, adminID, intentID string) (Intent, error)
		ReconcilePending(ctx context.Context) (ReconcileReport, error)

		GetIntent(ctx context.Context, id string) (Intent, error)
		QueryIntents(ctx context.Context, filter IntentFilter) ([]Intent, error)
		Query(ctx context.Context, filter QueryFilter) ([]PaymentRecord, error)
		GetByID(ctx context.Context, id string) (PaymentRecord, error)
		UpdateStatus(ctx context.Context, id, status string) (PaymentRecord, error)

		UPIDetails() UPIDetails
		BankAccount() BankAccount
		SupportPhone() string
	}

	Service struct {
		conf     *core.Config
		logger   core.Logger
		repo     Repository
		settings settings.Repository
		subs     subscription.ServiceInterface
		users    UserGetter
		gateways Gateways
		emailSvc core.EmailService
		recorder Recorder
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	conf *core.Config,
	logger core.Logger,
	repo Repository,
	settingsRepo settings.Repository,
	subs subscription.ServiceInterface,
	users UserGetter,
	gateways Gateways,
	emailSvc core.EmailService,
	recorder Recorder,
) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		conf:     conf,
		logger:   logger,
		repo:     repo,
		settings: settingsRepo,
		subs:     subs,
		users:    users,
		gateways: gateways,
		emailSvc: emailSvc,
		recorder: recorder,
	}
}

func (svc *Service) Plans() []Plan {
	return Plans
}

// stripeSettings returns the Stripe secret key & allowed countries; the admin-set ones take precedence.
func (svc *Service) stripeSettings(ctx context.Context) (string, []string, error) {
	key, err := svc.settings.GetSetting(ctx, settings.KeyStripeSecretKey)
	if err != nil {
		if errors.Cause(err) != settings.ErrNotFound {
			return "", nil, errors.Wrap(err, "getting stripe secret key")
		}
		key = svc.conf.Payments.StripeSecretKey
	}
	if key == "" || svc.gateways.Stripe == nil {
		return "", nil, ErrStripeNotConfigured
	}

	countries := svc.conf.Payments.StripeCountries
	if cs, err := svc.settings.GetSetting(ctx, settings.KeyStripeAllowedCountries); err == nil {
		countries = strings.Split(cs, ",")
	} else if errors.Cause(err) != settings.ErrNotFound {
		return "", nil, errors.Wrap(err, "getting stripe allowed countries")
	}
	return key, countries, nil
}

func (svc *Service) IsStripeConfigured(ctx context.Context) (bool, error) {
	if _, _, err := svc.stripeSettings(ctx); err != nil {
		if errors.Cause(err) == ErrStripeNotConfigured {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (svc *Service) SetStripeConfiguration(ctx context.Context, sc StripeConfiguration) error {
	countries := make([]string, 0, len(sc.AllowedCountries))
	for _, c := range sc.AllowedCountries {
		countries = append(countries, strings.ToUpper(core.CleanString(c)))
	}
	if err := svc.settings.SetSetting(ctx, settings.KeyStripeSecretKey, core.CleanString(sc.SecretKey)); err != nil {
		return errors.Wrap(err, "saving stripe secret key")
	}
	return errors.Wrap(
		svc.settings.SetSetting(ctx, settings.KeyStripeAllowedCountries, strings.Join(countries, ",")),
		"saving stripe allowed countries",
	)
}

func (svc *Service) newIntent(userID, strategy, planID string, amount int64, currency string) Intent {
	now := NowFunc().UTC()
	if currency == "" {
		currency = svc.conf.Payments.Currency
	}
	return Intent{
		ID:        uuid.New().String(),
		UserID:    userID,
		Strategy:  strategy,
		PlanID:    planID,
		Amount:    amount,
		Currency:  strings.ToLower(currency),
		State:     StateInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// createPendingPayment records the ledger entry of a freshly initiated intent.
func (svc *Service) createPendingPayment(ctx context.Context, in Intent) error {
	now := NowFunc().UTC()
	p := PaymentRecord{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		UserID:    in.UserID,
		Timestamp: now,
		Amount:    in.Amount,
		Currency:  in.Currency,
		IntentID:  in.ID,
		Strategy:  in.Strategy,
		PlanID:    in.PlanID,
		UpdatedAt: now,
	}
	if in.Strategy == StrategyStripe {
		p.StripeSessionID = in.ProcessorRef
	}
	_, err := svc.repo.CreatePayment(ctx, p)
	return errors.Wrap(err, "creating payment record")
}

func planFor(planID, strategy string) (Plan, error) {
	plan, ok := PlanByID(planID)
	if !ok {
		return Plan{}, core.NewValidationError(ErrUnknownPlan, core.FieldError{Field: "planId", Error: ErrUnknownPlan.Error()})
	}
	if !plan.supports(strategy) {
		return Plan{}, core.NewValidationError(ErrStrategyNotSupported, core.FieldError{Field: "planId", Error: ErrStrategyNotSupported.Error()})
	}
	return plan, nil
}

// CreateCheckoutSession opens a Stripe checkout session for the items; nc must have been validated.
func (svc *Service) CreateCheckoutSession(ctx context.Context, userID string, nc NewCheckout) (CheckoutResult, error) {
	key, countries, err := svc.stripeSettings(ctx)
	if err != nil {
		return CheckoutResult{}, err
	}
	if nc.PlanID != "" {
		plan, err := planFor(nc.PlanID, StrategyStripe)
		if err != nil {
			return CheckoutResult{}, err
		}
		if nc.Total() != plan.Amount {
			return CheckoutResult{}, core.NewValidationError(ErrPlanAmountMismatch,
				core.FieldError{Field: "items", Error: ErrPlanAmountMismatch.Error()})
		}
	}

	in := svc.newIntent(userID, StrategyStripe, nc.PlanID, nc.Total(), nc.Items[0].Currency)
	if in, err = svc.repo.CreateIntent(ctx, in); err != nil {
		return CheckoutResult{}, errors.Wrap(err, "creating intent")
	}

	session, err := svc.gateways.Stripe.CreateCheckoutSession(ctx, key, CheckoutRequest{
		IntentID:         in.ID,
		UserID:           userID,
		Items:            nc.Items,
		SuccessURL:       nc.SuccessURL,
		CancelURL:        nc.CancelURL,
		AllowedCountries: countries,
	})
	if err != nil {
		svc.fail(ctx, in, err)
		return CheckoutResult{}, errors.Wrap(err, "creating checkout session")
	}

	in.ProcessorRef = null.StringFrom(session.ID)
	in.UpdatedAt = NowFunc().UTC()
	if in, err = svc.repo.UpdateIntent(ctx, in, StateInitiated); err != nil {
		return CheckoutResult{}, errors.Wrap(err, "updating intent")
	}
	if err = svc.createPendingPayment(ctx, in); err != nil {
		return CheckoutResult{}, err
	}
	return CheckoutResult{ID: session.ID, URL: session.URL, IntentID: in.ID}, nil
}

// FinalizeStripeCheckout confirms the intent behind sessionID and reports whether the subscription is active.
// Synthetic manual session IDs are accepted too.
func (svc *Service) FinalizeStripeCheckout(ctx context.Context, userID, sessionID string) (bool, error) {
	in, err := svc.repo.GetIntentByProcessorRef(ctx, sessionID)
	if err != nil {
		if errors.Cause(err) == ErrIntentNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "getting intent")
	}
	if in.UserID != userID {
		return false, nil
	}
	if in.Activated() {
		// replayed: the subscription may have been deactivated since
		active, err := svc.subs.IsActive(ctx, userID)
		return active, errors.Wrap(err, "checking subscription")
	}

	switch in.Strategy {
	case StrategyManual:
		in, err = svc.confirmManual(ctx, in, "")
		if err != nil {
			return false, err
		}
		return in.Activated(), nil
	case StrategyStripe:
	default:
		return false, nil
	}

	key, _, err := svc.stripeSettings(ctx)
	if err != nil {
		return false, err
	}
	session, err := svc.gateways.Stripe.GetCheckoutSession(ctx, key, sessionID)
	if err != nil {
		return false, errors.Wrap(err, "getting checkout session")
	}
	if !session.Paid() {
		return false, nil
	}

	in, changed, err := svc.processorConfirm(ctx, in, session.PaymentIntentID, true)
	if err != nil {
		return false, err
	}
	if changed {
		if in, err = svc.activate(ctx, in); err != nil {
			return false, err
		}
	}
	return in.Activated(), nil
}

func (svc *Service) StripeSessionStatus(ctx context.Context, sessionID string) (SessionStatus, error) {
	key, _, err := svc.stripeSettings(ctx)
	if err != nil {
		return SessionStatus{}, err
	}
	session, err := svc.gateways.Stripe.GetCheckoutSession(ctx, key, sessionID)
	if err != nil {
		return SessionStatus{Kind: "failed", Error: err.Error()}, nil
	}
	if !session.Paid() {
		return SessionStatus{Kind: "failed", Error: "payment status: " + session.PaymentStatus}, nil
	}
	resp, _ := json.Marshal(map[string]interface{}{
		"id":             session.ID,
		"status":         session.Status,
		"payment_status": session.PaymentStatus,
		"amount_total":   session.AmountTotal,
		"currency":       session.Currency,
	})
	return SessionStatus{Kind: "completed", UserPrincipal: session.ClientReferenceID, Response: string(resp)}, nil
}

func (svc *Service) CreateRazorpayOrder(ctx context.Context, userID, planID string) (RazorpayOrder, error) {
	if svc.gateways.Razorpay == nil {
		return RazorpayOrder{}, ErrRazorpayNotConfigured
	}
	plan, err := planFor(planID, StrategyRazorpay)
	if err != nil {
		return RazorpayOrder{}, err
	}

	in := svc.newIntent(userID, StrategyRazorpay, plan.ID, plan.Amount, "")
	if in, err = svc.repo.CreateIntent(ctx, in); err != nil {
		return RazorpayOrder{}, errors.Wrap(err, "creating intent")
	}

	order, err := svc.gateways.Razorpay.CreateOrder(ctx, in.Amount, strings.ToUpper(in.Currency), in.ID)
	if err != nil {
		svc.fail(ctx, in, err)
		return RazorpayOrder{}, errors.Wrap(err, "creating razorpay order")
	}

	in.ProcessorRef = null.StringFrom(order.ID)
	in.UpdatedAt = NowFunc().UTC()
	if in, err = svc.repo.UpdateIntent(ctx, in, StateInitiated); err != nil {
		return RazorpayOrder{}, errors.Wrap(err, "updating intent")
	}
	if err = svc.createPendingPayment(ctx, in); err != nil {
		return RazorpayOrder{}, err
	}
	return RazorpayOrder{
		IntentID: in.ID,
		OrderID:  order.ID,
		Amount:   in.Amount,
		Currency: strings.ToUpper(in.Currency),
		KeyID:    svc.gateways.Razorpay.KeyID(),
	}, nil
}

// ConfirmRazorpay verifies the checkout signature then activates the subscription, best effort:
// when activation fails the intent stays processor-confirmed and is retried by the reconciler.
func (svc *Service) ConfirmRazorpay(ctx context.Context, userID string, rc RazorpayConfirmation) (Intent, error) {
	if svc.gateways.Razorpay == nil {
		return Intent{}, ErrRazorpayNotConfigured
	}
	in, err := svc.ownIntent(ctx, userID, rc.IntentID)
	if err != nil {
		return Intent{}, err
	}
	if in.Strategy != StrategyRazorpay || in.ProcessorRef.String != rc.OrderID {
		return Intent{}, ErrInvalidSignature
	}
	if !svc.gateways.Razorpay.VerifyPaymentSignature(rc.OrderID, rc.PaymentID, rc.Signature) {
		return Intent{}, ErrInvalidSignature
	}

	in, changed, err := svc.processorConfirm(ctx, in, rc.PaymentID, true)
	if err != nil {
		return Intent{}, err
	}
	if changed {
		activated, err := svc.activate(ctx, in)
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("activating razorpay intent %s: %v", in.ID, err))
			return activated, nil
		}
		in = activated
	}
	return in, nil
}

type razorpayEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

func (evt razorpayEvent) orderID() string {
	if id := evt.Payload.Payment.Entity.OrderID; id != "" {
		return id
	}
	return evt.Payload.Order.Entity.ID
}

// HandleRazorpayWebhook processes a signed Razorpay event. Unknown orders and events are ignored.
func (svc *Service) HandleRazorpayWebhook(ctx context.Context, body []byte, signature string) error {
	if svc.gateways.Razorpay == nil {
		return ErrRazorpayNotConfigured
	}
	if !svc.gateways.Razorpay.VerifyWebhookSignature(body, signature) {
		return ErrInvalidSignature
	}

	var evt razorpayEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return core.NewValidationError(errors.Wrap(err, "parsing webhook payload"))
	}

	var confirmed bool
	switch evt.Event {
	case "payment.authorized", "payment.captured", "order.paid":
		confirmed = true
	case "payment.failed":
	default:
		svc.logger.Debug(fmt.Sprintf("ignoring razorpay event %q", evt.Event))
		return nil
	}

	in, err := svc.repo.GetIntentByProcessorRef(ctx, evt.orderID())
	if err != nil {
		if errors.Cause(err) == ErrIntentNotFound {
			svc.logger.Warn(fmt.Sprintf("razorpay event %q for unknown order %q", evt.Event, evt.orderID()))
			return nil
		}
		return errors.Wrap(err, "getting intent")
	}

	if !confirmed {
		if in.State == StateInitiated {
			svc.fail(ctx, in, errors.New("razorpay: payment failed"))
		}
		return nil
	}

	in, changed, err := svc.processorConfirm(ctx, in, evt.Payload.Payment.Entity.ID, true)
	if err != nil {
		return err
	}
	if changed {
		if _, err = svc.activate(ctx, in); err != nil {
			svc.logger.Warn(fmt.Sprintf("activating razorpay intent %s: %v", in.ID, err))
		}
	}
	return nil
}

// InitiateManual starts a UPI/QR payment; the returned intent ID is used to assert the payment later.
func (svc *Service) InitiateManual(ctx context.Context, userID, planID string) (Intent, error) {
	plan, err := planFor(planID, StrategyManual)
	if err != nil {
		return Intent{}, err
	}
	in := svc.newIntent(userID, StrategyManual, plan.ID, plan.Amount, "")
	in.ProcessorRef = null.StringFrom("manual_" + uuid.New().String())
	if in, err = svc.repo.CreateIntent(ctx, in); err != nil {
		return Intent{}, errors.Wrap(err, "creating intent")
	}
	if err = svc.createPendingPayment(ctx, in); err != nil {
		return Intent{}, err
	}
	return in, nil
}

func (svc *Service) ConfirmManual(ctx context.Context, userID string, mc ManualConfirmation) (Intent, error) {
	in, err := svc.ownIntent(ctx, userID, mc.IntentID)
	if err != nil {
		return Intent{}, err
	}
	if in.Strategy != StrategyManual {
		return Intent{}, errors.Wrapf(ErrInvalidTransition, "%s intent cannot be confirmed manually", in.Strategy)
	}
	return svc.confirmManual(ctx, in, core.CleanString(mc.Reference))
}

// confirmManual trusts the user: the intent is confirmed unverified, the subscription activated
// and the admins asked to reconcile.
func (svc *Service) confirmManual(ctx context.Context, in Intent, reference string) (Intent, error) {
	in, changed, err := svc.processorConfirm(ctx, in, reference, false)
	if err != nil || !changed {
		return in, err
	}
	if in, err = svc.activate(ctx, in); err != nil {
		return in, err
	}
	svc.notifyAdmins(in)
	return in, nil
}

// AdminActivate activates the subscription of userID regardless of any payment.
// A reconciled admin intent is kept for the audit trail.
func (svc *Service) AdminActivate(ctx context.Context, adminID, userID string) (Intent, error) {
	if _, err := svc.users.GetByID(ctx, userID); err != nil {
		return Intent{}, err
	}
	if _, err := svc.subs.Activate(ctx, userID, subscription.SourceAdmin); err != nil {
		return Intent{}, errors.Wrap(err, "activating subscription")
	}

	in := svc.newIntent(userID, StrategyAdmin, "", 0, "")
	in.State = StateReconciled
	in.Verified = true
	in.ReconciledBy = null.StringFrom(adminID)
	in, err := svc.repo.CreateIntent(ctx, in)
	if err != nil {
		return Intent{}, errors.Wrap(err, "creating intent")
	}
	svc.recorder.RecordTransition(in.Strategy, "", in.State)
	svc.notifyActivated(ctx, userID)
	return in, nil
}

func (svc *Service) AdminDeactivate(ctx context.Context, userID string) (subscription.Subscription, error) {
	if _, err := svc.users.GetByID(ctx, userID); err != nil {
		return subscription.Subscription{}, err
	}
	return svc.subs.Deactivate(ctx, userID)
}

// Reconcile is the admin sign-off of an intent: stuck activations are retried, activated intents are reconciled.
func (svc *Service) Reconcile(ctx context.Context, adminID, intentID string) (Intent, error) {
	in, err := svc.repo.GetIntent(ctx, intentID)
	if err != nil {
		return Intent{}, err
	}
	if in.State == StateProcessorConfirmed {
		if in, err = svc.activate(ctx, in); err != nil {
			return in, err
		}
	}
	return svc.reconcile(ctx, in, adminID)
}

// ReconcilePending is run periodically:
//   - processor-confirmed intents are activated again
//   - verified activated intents are reconciled
//   - unverified (manual) activated intents older than the review age are reported to the admins
func (svc *Service) ReconcilePending(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	stuck, err := svc.repo.QueryIntents(ctx, IntentFilter{States: []string{StateProcessorConfirmed}})
	if err != nil {
		return report, errors.Wrap(err, "querying processor-confirmed intents")
	}
	for _, in := range stuck {
		if _, err := svc.activate(ctx, in); err != nil {
			report.Failed++
			svc.logger.Warn(fmt.Sprintf("reconciler: activating intent %s: %v", in.ID, err))
			continue
		}
		report.Activated++
	}

	activated, err := svc.repo.QueryIntents(ctx, IntentFilter{States: []string{StateBackendConfirmed}})
	if err != nil {
		return report, errors.Wrap(err, "querying backend-confirmed intents")
	}
	reviewBefore := NowFunc().UTC().Add(-svc.conf.Payments.ManualReviewAge)
	for _, in := range activated {
		if !in.Verified {
			if in.UpdatedAt.After(reviewBefore) {
				continue
			}
			in.UpdatedAt = NowFunc().UTC()
			if _, err := svc.repo.UpdateIntent(ctx, in, in.State); err != nil {
				report.Failed++
				continue
			}
			svc.notifyAdmins(in)
			report.Reported++
			continue
		}
		if _, err := svc.reconcile(ctx, in, systemReconciler); err != nil {
			report.Failed++
			svc.logger.Warn(fmt.Sprintf("reconciler: reconciling intent %s: %v", in.ID, err))
			continue
		}
		report.Reconciled++
	}
	return report, nil
}

func (svc *Service) GetIntent(ctx context.Context, id string) (Intent, error) {
	return svc.repo.GetIntent(ctx, id)
}

func (svc *Service) QueryIntents(ctx context.Context, filter IntentFilter) ([]Intent, error) {
	return svc.repo.QueryIntents(ctx, filter)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]PaymentRecord, error) {
	return svc.repo.QueryPayments(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (PaymentRecord, error) {
	return svc.repo.GetPayment(ctx, id)
}

func (svc *Service) UpdateStatus(ctx context.Context, id, status string) (PaymentRecord, error) {
	p, err := svc.repo.GetPayment(ctx, id)
	if err != nil {
		return PaymentRecord{}, err
	}
	p.Status = status
	p.UpdatedAt = NowFunc().UTC()
	p, err = svc.repo.UpdatePayment(ctx, p)
	return p, errors.Wrap(err, "updating payment")
}

func (svc *Service) UPIDetails() UPIDetails {
	return UPIDetails{
		MaskedUPIID: MaskUPIID(svc.conf.Payments.UPIID),
		PayeeName:   svc.conf.Payments.UPIPayeeName,
		QRCodeURL:   svc.conf.Payments.UPIQRCodeURL,
	}
}

func (svc *Service) BankAccount() BankAccount {
	return BankAccount{
		AccountName:   svc.conf.Payments.BankAccountName,
		AccountNumber: svc.conf.Payments.BankAccountNumber,
		IFSC:          svc.conf.Payments.BankIFSC,
		BankName:      svc.conf.Payments.BankName,
	}
}

func (svc *Service) SupportPhone() string {
	return svc.conf.Payments.SupportPhone
}

// ownIntent returns the intent only if it belongs to userID.
func (svc *Service) ownIntent(ctx context.Context, userID, id string) (Intent, error) {
	in, err := svc.repo.GetIntent(ctx, id)
	if err != nil {
		return Intent{}, err
	}
	if in.UserID != userID {
		return Intent{}, ErrIntentNotFound
	}
	return in, nil
}

// processorConfirm moves an initiated intent to processor-confirmed. changed is false when the intent
// was already confirmed, in which case nothing else must happen.
func (svc *Service) processorConfirm(ctx context.Context, in Intent, paymentID string, verified bool) (Intent, bool, error) {
	if in.State != StateInitiated {
		if in.Confirmed() {
			return in, false, nil
		}
		return in, false, errors.Wrapf(ErrInvalidTransition, "%s -> %s", in.State, StateProcessorConfirmed)
	}

	from := in.State
	if err := in.transition(StateProcessorConfirmed); err != nil {
		return in, false, err
	}
	in.ProcessorPaymentID = null.NewString(paymentID, paymentID != "")
	in.Verified = verified
	in.UpdatedAt = NowFunc().UTC()
	updated, err := svc.repo.UpdateIntent(ctx, in, from)
	if err != nil {
		if errors.Cause(err) == ErrStaleIntent {
			// confirmed concurrently
			current, err := svc.repo.GetIntent(ctx, in.ID)
			return current, false, err
		}
		return in, false, errors.Wrap(err, "updating intent")
	}
	svc.recorder.RecordTransition(in.Strategy, from, in.State)
	return updated, true, nil
}

// activate activates the subscription of a processor-confirmed intent and completes its payment record.
func (svc *Service) activate(ctx context.Context, in Intent) (Intent, error) {
	if in.State != StateProcessorConfirmed {
		return in, errors.Wrapf(ErrInvalidTransition, "%s -> %s", in.State, StateBackendConfirmed)
	}

	if _, err := svc.subs.Activate(ctx, in.UserID, in.Strategy); err != nil {
		in.LastError = null.StringFrom(err.Error())
		in.UpdatedAt = NowFunc().UTC()
		if _, uErr := svc.repo.UpdateIntent(ctx, in, in.State); uErr != nil {
			svc.logger.Warn(fmt.Sprintf("recording activation error of intent %s: %v", in.ID, uErr))
		}
		return in, errors.Wrap(err, "activating subscription")
	}
	if err := svc.completePayment(ctx, in); err != nil {
		return in, err
	}

	from := in.State
	if err := in.transition(StateBackendConfirmed); err != nil {
		return in, err
	}
	in.LastError = null.String{}
	in.UpdatedAt = NowFunc().UTC()
	updated, err := svc.repo.UpdateIntent(ctx, in, from)
	if err != nil {
		if errors.Cause(err) == ErrStaleIntent {
			return svc.repo.GetIntent(ctx, in.ID)
		}
		return in, errors.Wrap(err, "updating intent")
	}
	svc.recorder.RecordTransition(in.Strategy, from, in.State)
	svc.notifyActivated(ctx, in.UserID)
	return updated, nil
}

func (svc *Service) reconcile(ctx context.Context, in Intent, by string) (Intent, error) {
	from := in.State
	if err := in.transition(StateReconciled); err != nil {
		return in, err
	}
	in.ReconciledBy = null.StringFrom(by)
	in.UpdatedAt = NowFunc().UTC()
	updated, err := svc.repo.UpdateIntent(ctx, in, from)
	if err != nil {
		return in, errors.Wrap(err, "updating intent")
	}
	svc.recorder.RecordTransition(in.Strategy, from, in.State)
	return updated, nil
}

// fail marks an initiated intent & its payment record as failed; errors are only logged.
func (svc *Service) fail(ctx context.Context, in Intent, cause error) {
	from := in.State
	if err := in.transition(StateFailed); err != nil {
		return
	}
	in.LastError = null.StringFrom(cause.Error())
	in.UpdatedAt = NowFunc().UTC()
	if _, err := svc.repo.UpdateIntent(ctx, in, from); err != nil {
		svc.logger.Warn(fmt.Sprintf("failing intent %s: %v", in.ID, err))
		return
	}
	svc.recorder.RecordTransition(in.Strategy, from, in.State)

	if p, err := svc.repo.GetPaymentByIntent(ctx, in.ID); err == nil {
		p.Status = StatusFailed
		p.UpdatedAt = NowFunc().UTC()
		if _, err = svc.repo.UpdatePayment(ctx, p); err != nil {
			svc.logger.Warn(fmt.Sprintf("failing payment %s: %v", p.ID, err))
		}
	}
}

func (svc *Service) completePayment(ctx context.Context, in Intent) error {
	now := NowFunc().UTC()
	p, err := svc.repo.GetPaymentByIntent(ctx, in.ID)
	if err != nil {
		if errors.Cause(err) != ErrNotFound {
			return errors.Wrap(err, "getting payment record")
		}
		if err = svc.createPendingPayment(ctx, in); err != nil {
			return err
		}
		if p, err = svc.repo.GetPaymentByIntent(ctx, in.ID); err != nil {
			return errors.Wrap(err, "getting payment record")
		}
	}
	if p.Status == StatusCompleted {
		return nil
	}
	p.Status = StatusCompleted
	p.UpdatedAt = now
	_, err = svc.repo.UpdatePayment(ctx, p)
	return errors.Wrap(err, "completing payment record")
}

func (svc *Service) notifyActivated(ctx context.Context, userID string) {
	if svc.emailSvc == nil {
		return
	}
	usr, err := svc.users.GetByID(ctx, userID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("getting user %s to notify: %v", userID, err))
		return
	}
	if usr.Email == "" {
		return
	}
	svc.emailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Your DiplomaHub subscription is active",
		TemplateName: "subscription_activated",
	})
}

func (svc *Service) notifyAdmins(in Intent) {
	if svc.emailSvc == nil || len(svc.conf.AdminEmails) == 0 {
		return
	}
	svc.emailSvc.SendMessages(&core.EmailMessage{
		To:           svc.conf.AdminEmails,
		Subject:      "Payment awaiting reconciliation",
		TemplateName: "payment_review",
		TemplateData: in,
	})
}
