package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core/subscription"
)

const subscriptionColumns = "user_id, active, source, activated_at, deactivated_at, updated_at"

type subscriptionRepository struct {
	repository
}

func NewSubscriptionRepository(db *sqlx.DB) subscription.Repository {
	return &subscriptionRepository{repository{db: db}}
}

func (repo *subscriptionRepository) GetSubscription(ctx context.Context, userID string) (subscription.Subscription, error) {
	var sub subscription.Subscription
	if err := repo.get(ctx, &sub, "SELECT "+subscriptionColumns+" FROM subscriptions WHERE user_id = ?", userID); err != nil {
		return subscription.Subscription{}, trapNoRowsErr(err, subscription.ErrNotFound, "getting subscription")
	}
	return sub, nil
}

func (repo *subscriptionRepository) SaveSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE subscriptions SET
			active = :active, source = :source, activated_at = :activated_at,
			deactivated_at = :deactivated_at, updated_at = :updated_at
		WHERE user_id = :user_id`, sub)
	if err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "updating subscription")
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return sub, nil
	}

	_, err = repo.db.NamedExecContext(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (:user_id, :active, :source, :activated_at, :deactivated_at, :updated_at)`, sub)
	if err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "inserting subscription")
	}
	return sub, nil
}

func (repo *subscriptionRepository) QueryActiveSubscriptions(ctx context.Context) ([]subscription.Subscription, error) {
	subs := make([]subscription.Subscription, 0)
	err := repo.selectAll(ctx, &subs,
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE active = ? ORDER BY activated_at DESC", true)
	return subs, errors.Wrap(err, "querying active subscriptions")
}
