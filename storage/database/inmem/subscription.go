package inmemdb

import (
	"context"
	"sort"

	"github.com/caffeinepub/diploma-smart-study-hub/core/subscription"
)

type subscriptionRepository struct {
	db *DB
}

func NewSubscriptionRepository(db *DB) subscription.Repository {
	return &subscriptionRepository{db: db}
}

func (repo *subscriptionRepository) GetSubscription(_ context.Context, userID string) (subscription.Subscription, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sub, ok := repo.db.subscriptions[userID]; ok {
		return *sub, nil
	}
	return subscription.Subscription{}, subscription.ErrNotFound
}

func (repo *subscriptionRepository) SaveSubscription(_ context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.subscriptions[sub.UserID] = &sub
	return sub, nil
}

func (repo *subscriptionRepository) QueryActiveSubscriptions(context.Context) ([]subscription.Subscription, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subs := make([]subscription.Subscription, 0)
	for _, sub := range repo.db.subscriptions {
		if sub.Active {
			subs = append(subs, *sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ActivatedAt.Time.After(subs[j].ActivatedAt.Time) })
	return subs, nil
}
