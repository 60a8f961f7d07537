package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
)

const (
	intentColumns = "id, user_id, strategy, plan_id, amount, currency, state, processor_ref, processor_payment_id, " +
		"verified, last_error, reconciled_by, created_at, updated_at"
	paymentColumns = "id, status, user_id, created_at, stripe_session_id, amount, currency, intent_id, strategy, plan_id, updated_at"
)

type paymentRepository struct {
	repository
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *sqlx.DB) payment.Repository {
	return &paymentRepository{repository{db: db}}
}

func (repo *paymentRepository) CreateIntent(ctx context.Context, in payment.Intent) (payment.Intent, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO payment_intents (`+intentColumns+`)
		VALUES (:id, :user_id, :strategy, :plan_id, :amount, :currency, :state, :processor_ref, :processor_payment_id,
			:verified, :last_error, :reconciled_by, :created_at, :updated_at)`, in)
	if err != nil {
		return payment.Intent{}, errors.Wrap(err, "inserting payment intent")
	}
	return in, nil
}

func (repo *paymentRepository) GetIntent(ctx context.Context, id string) (payment.Intent, error) {
	var in payment.Intent
	if err := repo.get(ctx, &in, "SELECT "+intentColumns+" FROM payment_intents WHERE id = ?", id); err != nil {
		return payment.Intent{}, trapNoRowsErr(err, payment.ErrIntentNotFound, "getting payment intent")
	}
	return in, nil
}

func (repo *paymentRepository) GetIntentByProcessorRef(ctx context.Context, ref string) (payment.Intent, error) {
	if ref == "" {
		return payment.Intent{}, payment.ErrIntentNotFound
	}
	var in payment.Intent
	if err := repo.get(ctx, &in, "SELECT "+intentColumns+" FROM payment_intents WHERE processor_ref = ?", ref); err != nil {
		return payment.Intent{}, trapNoRowsErr(err, payment.ErrIntentNotFound, "getting payment intent")
	}
	return in, nil
}

// UpdateIntent is a compare-and-swap on the state column.
func (repo *paymentRepository) UpdateIntent(ctx context.Context, in payment.Intent, fromState string) (payment.Intent, error) {
	n, err := repo.exec(ctx, `
		UPDATE payment_intents SET
			state = ?, processor_ref = ?, processor_payment_id = ?, verified = ?,
			last_error = ?, reconciled_by = ?, updated_at = ?
		WHERE id = ? AND state = ?`,
		in.State, in.ProcessorRef, in.ProcessorPaymentID, in.Verified,
		in.LastError, in.ReconciledBy, in.UpdatedAt.UTC(),
		in.ID, fromState,
	)
	if err != nil {
		return payment.Intent{}, errors.Wrap(err, "updating payment intent")
	}
	if n == 0 {
		if _, err = repo.GetIntent(ctx, in.ID); err != nil {
			return payment.Intent{}, err
		}
		return payment.Intent{}, payment.ErrStaleIntent
	}
	return in, nil
}

func (repo *paymentRepository) QueryIntents(ctx context.Context, filter payment.IntentFilter) ([]payment.Intent, error) {
	conds := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	if len(filter.States) > 0 {
		conds = append(conds, "state IN (?)")
		args = append(args, filter.States)
	}
	if filter.Strategy != "" {
		conds = append(conds, "strategy = ?")
		args = append(args, filter.Strategy)
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if !filter.UpdatedBefore.IsZero() {
		conds = append(conds, "updated_at < ?")
		args = append(args, filter.UpdatedBefore.UTC())
	}

	q, args, err := repo.in("SELECT "+intentColumns+" FROM payment_intents"+where(conds)+" ORDER BY created_at ASC", args...)
	if err != nil {
		return nil, errors.Wrap(err, "building intents query")
	}
	intents := make([]payment.Intent, 0)
	err = repo.db.SelectContext(ctx, &intents, q, args...)
	return intents, errors.Wrap(err, "querying payment intents")
}

func (repo *paymentRepository) CreatePayment(ctx context.Context, p payment.PaymentRecord) (payment.PaymentRecord, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (:id, :status, :user_id, :created_at, :stripe_session_id, :amount, :currency, :intent_id, :strategy,
			:plan_id, :updated_at)`, p)
	if err != nil {
		return payment.PaymentRecord{}, errors.Wrap(err, "inserting payment")
	}
	return p, nil
}

func (repo *paymentRepository) GetPayment(ctx context.Context, id string) (payment.PaymentRecord, error) {
	var p payment.PaymentRecord
	if err := repo.get(ctx, &p, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id); err != nil {
		return payment.PaymentRecord{}, trapNoRowsErr(err, payment.ErrNotFound, "getting payment")
	}
	return p, nil
}

func (repo *paymentRepository) GetPaymentByIntent(ctx context.Context, intentID string) (payment.PaymentRecord, error) {
	var p payment.PaymentRecord
	if err := repo.get(ctx, &p, "SELECT "+paymentColumns+" FROM payments WHERE intent_id = ?", intentID); err != nil {
		return payment.PaymentRecord{}, trapNoRowsErr(err, payment.ErrNotFound, "getting payment")
	}
	return p, nil
}

func (repo *paymentRepository) QueryPayments(ctx context.Context, filter payment.QueryFilter) ([]payment.PaymentRecord, error) {
	conds := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}

	payments := make([]payment.PaymentRecord, 0)
	err := repo.selectAll(ctx, &payments,
		"SELECT "+paymentColumns+" FROM payments"+where(conds)+" ORDER BY created_at DESC, id", args...)
	return payments, errors.Wrap(err, "querying payments")
}

func (repo *paymentRepository) UpdatePayment(ctx context.Context, p payment.PaymentRecord) (payment.PaymentRecord, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE payments SET status = :status, stripe_session_id = :stripe_session_id, updated_at = :updated_at
		WHERE id = :id`, p)
	if err != nil {
		return payment.PaymentRecord{}, errors.Wrap(err, "updating payment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return payment.PaymentRecord{}, payment.ErrNotFound
	}
	return p, nil
}
