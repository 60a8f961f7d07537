package inmemdb

import (
	"context"
	"sort"

	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
)

type paymentRepository struct {
	db *DB
}

func NewPaymentRepository(db *DB) payment.Repository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) CreateIntent(_ context.Context, in payment.Intent) (payment.Intent, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.intents[in.ID] = &in
	return in, nil
}

func (repo *paymentRepository) GetIntent(_ context.Context, id string) (payment.Intent, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if in, ok := repo.db.intents[id]; ok {
		return *in, nil
	}
	return payment.Intent{}, payment.ErrIntentNotFound
}

func (repo *paymentRepository) GetIntentByProcessorRef(_ context.Context, ref string) (payment.Intent, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ref != "" {
		for _, in := range repo.db.intents {
			if in.ProcessorRef.Valid && in.ProcessorRef.String == ref {
				return *in, nil
			}
		}
	}
	return payment.Intent{}, payment.ErrIntentNotFound
}

func (repo *paymentRepository) UpdateIntent(_ context.Context, in payment.Intent, fromState string) (payment.Intent, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.intents[in.ID]
	if !ok {
		return payment.Intent{}, payment.ErrIntentNotFound
	}
	if stored.State != fromState {
		return payment.Intent{}, payment.ErrStaleIntent
	}
	repo.db.intents[in.ID] = &in
	return in, nil
}

func (repo *paymentRepository) QueryIntents(_ context.Context, filter payment.IntentFilter) ([]payment.Intent, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	states := make(map[string]bool, len(filter.States))
	for _, s := range filter.States {
		states[s] = true
	}
	intents := make([]payment.Intent, 0)
	for _, in := range repo.db.intents {
		if len(states) > 0 && !states[in.State] {
			continue
		}
		if filter.Strategy != "" && in.Strategy != filter.Strategy {
			continue
		}
		if filter.UserID != "" && in.UserID != filter.UserID {
			continue
		}
		if !filter.UpdatedBefore.IsZero() && !in.UpdatedAt.Before(filter.UpdatedBefore) {
			continue
		}
		intents = append(intents, *in)
	}
	sort.Slice(intents, func(i, j int) bool {
		if c := compareTimes(intents[i].CreatedAt, intents[j].CreatedAt); c != 0 {
			return c < 0
		}
		return intents[i].ID < intents[j].ID
	})
	return intents, nil
}

func (repo *paymentRepository) CreatePayment(_ context.Context, p payment.PaymentRecord) (payment.PaymentRecord, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.payments[p.ID] = &p
	return p, nil
}

func (repo *paymentRepository) GetPayment(_ context.Context, id string) (payment.PaymentRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.payments[id]; ok {
		return *p, nil
	}
	return payment.PaymentRecord{}, payment.ErrNotFound
}

func (repo *paymentRepository) GetPaymentByIntent(_ context.Context, intentID string) (payment.PaymentRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, p := range repo.db.payments {
		if p.IntentID == intentID {
			return *p, nil
		}
	}
	return payment.PaymentRecord{}, payment.ErrNotFound
}

func (repo *paymentRepository) QueryPayments(_ context.Context, filter payment.QueryFilter) ([]payment.PaymentRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	payments := make([]payment.PaymentRecord, 0)
	for _, p := range repo.db.payments {
		if filter.UserID != "" && p.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		payments = append(payments, *p)
	}
	sort.Slice(payments, func(i, j int) bool {
		if c := compareTimes(payments[i].Timestamp, payments[j].Timestamp); c != 0 {
			return c > 0
		}
		return payments[i].ID > payments[j].ID
	})
	return payments, nil
}

func (repo *paymentRepository) UpdatePayment(_ context.Context, p payment.PaymentRecord) (payment.PaymentRecord, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.payments[p.ID]; !ok {
		return payment.PaymentRecord{}, payment.ErrNotFound
	}
	repo.db.payments[p.ID] = &p
	return p, nil
}
