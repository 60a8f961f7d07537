// Package subscription keeps the per-user "subscription active" state every payment strategy converges to.
package subscription

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
)

// Sources, ie. the entry point that activated the subscription.
const (
	SourceStripe   = "stripe"
	SourceRazorpay = "razorpay"
	SourceManual   = "manual"
	SourceAdmin    = "admin"
)

var (
	ErrNotFound = core.NewNotFoundError("subscription")

	NowFunc = time.Now // mockable
)

type Subscription struct {
	UserID        string    `json:"userId" db:"user_id"`
	Active        bool      `json:"active" db:"active"`
	Source        string    `json:"source" db:"source"`
	ActivatedAt   null.Time `json:"activatedAt" db:"activated_at"`
	DeactivatedAt null.Time `json:"deactivatedAt" db:"deactivated_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

type (
	Repository interface {
		GetSubscription(ctx context.Context, userID string) (Subscription, error)
		SaveSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		QueryActiveSubscriptions(ctx context.Context) ([]Subscription, error)
	}

	ServiceInterface interface {
		IsActive(ctx context.Context, userID string) (bool, error)
		Activate(ctx context.Context, userID, source string) (Subscription, error)
		Deactivate(ctx context.Context, userID string) (Subscription, error)
		QueryActive(ctx context.Context) ([]Subscription, error)
	}

	Service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// IsActive reports whether the user has an active subscription. Unknown users are not subscribed.
func (svc *Service) IsActive(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	sub, err := svc.repo.GetSubscription(ctx, userID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "getting subscription")
	}
	return sub.Active, nil
}

// Activate flips the subscription on. Activating an active subscription keeps its original activation.
func (svc *Service) Activate(ctx context.Context, userID, source string) (Subscription, error) {
	now := NowFunc().UTC()
	sub, err := svc.repo.GetSubscription(ctx, userID)
	if err != nil && errors.Cause(err) != ErrNotFound {
		return Subscription{}, errors.Wrap(err, "getting subscription")
	}
	if sub.Active {
		return sub, nil
	}
	sub = Subscription{
		UserID:      userID,
		Active:      true,
		Source:      source,
		ActivatedAt: null.TimeFrom(now),
		UpdatedAt:   now,
	}
	sub, err = svc.repo.SaveSubscription(ctx, sub)
	return sub, errors.Wrap(err, "saving subscription")
}

func (svc *Service) Deactivate(ctx context.Context, userID string) (Subscription, error) {
	now := NowFunc().UTC()
	sub, err := svc.repo.GetSubscription(ctx, userID)
	if err != nil {
		if errors.Cause(err) != ErrNotFound {
			return Subscription{}, errors.Wrap(err, "getting subscription")
		}
		sub = Subscription{UserID: userID}
	}
	sub.Active = false
	sub.DeactivatedAt = null.TimeFrom(now)
	sub.UpdatedAt = now
	sub, err = svc.repo.SaveSubscription(ctx, sub)
	return sub, errors.Wrap(err, "saving subscription")
}

func (svc *Service) QueryActive(ctx context.Context) ([]Subscription, error) {
	subs, err := svc.repo.QueryActiveSubscriptions(ctx)
	return subs, errors.Wrap(err, "querying active subscriptions")
}
