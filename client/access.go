package client

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/caffeinepub/diploma-smart-study-hub/core/access"
)

const (
	DefaultAdminStaleTime        = 5 * time.Minute
	DefaultSubscriptionStaleTime = 30 * time.Second
)

type (
	adminResponse struct {
		IsAdmin bool `json:"isAdmin"`
	}

	subscriptionResponse struct {
		Active bool `json:"active"`
	}
)

type cachedCheck struct {
	check access.Check
	at    time.Time
	token string // session the check was made for
}

func (cc cachedCheck) fresh(now time.Time, token string, staleTime time.Duration) bool {
	return cc.check.Loaded && cc.check.Err == nil && cc.token == token && now.Sub(cc.at) < staleTime
}

// AccessChecker decides whether the session owner may view gated content.
// isAdmin & isSubscribed are cached separately; failed checks are not cached and never grant access.
type AccessChecker struct {
	client                *Client
	adminStaleTime        time.Duration
	subscriptionStaleTime time.Duration

	mu    sync.Mutex
	admin cachedCheck
	sub   cachedCheck
}

type AccessOption func(*AccessChecker)

func AdminStaleTime(d time.Duration) AccessOption {
	return func(ac *AccessChecker) { ac.adminStaleTime = d }
}

func SubscriptionStaleTime(d time.Duration) AccessOption {
	return func(ac *AccessChecker) { ac.subscriptionStaleTime = d }
}

func (c *Client) NewAccessChecker(opts ...AccessOption) *AccessChecker {
	ac := &AccessChecker{
		client:                c,
		adminStaleTime:        DefaultAdminStaleTime,
		subscriptionStaleTime: DefaultSubscriptionStaleTime,
	}
	for _, opt := range opts {
		opt(ac)
	}
	return ac
}

// Decision returns the access of the session owner, fetching the stale checks concurrently.
func (ac *AccessChecker) Decision(ctx context.Context) access.Decision {
	token := ac.client.Session.Token()
	if token == "" {
		return access.Decision{}
	}

	ac.mu.Lock()
	defer ac.mu.Unlock()

	now := ac.client.clock.Now()
	admin, sub := ac.admin, ac.sub
	g, gctx := errgroup.WithContext(ctx)
	if !admin.fresh(now, token, ac.adminStaleTime) {
		g.Go(func() error {
			var res adminResponse
			err := ac.client.query(gctx, "/roles/me/admin", nil, &res)
			admin = cachedCheck{check: access.Loaded(res.IsAdmin, err), at: now, token: token}
			return nil
		})
	}
	if !sub.fresh(now, token, ac.subscriptionStaleTime) {
		g.Go(func() error {
			var res subscriptionResponse
			err := ac.client.query(gctx, "/subscription", nil, &res)
			sub = cachedCheck{check: access.Loaded(res.Active, err), at: now, token: token}
			return nil
		})
	}
	_ = g.Wait() // errors are carried by the checks
	ac.admin, ac.sub = admin, sub

	return access.Decision{
		Authenticated: true,
		IsAdmin:       admin.check.Loaded && admin.check.Err == nil && admin.check.Value,
		IsSubscribed:  sub.check.Loaded && sub.check.Err == nil && sub.check.Value,
		HasAccess:     access.Decide(admin.check, sub.check),
	}
}

// HasAccess is Decision(ctx).HasAccess.
func (ac *AccessChecker) HasAccess(ctx context.Context) bool {
	return ac.Decision(ctx).HasAccess
}

// Errors returns the errors of the last checks, if any.
func (ac *AccessChecker) Errors() []error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	errs := make([]error, 0, 2)
	for _, cc := range []cachedCheck{ac.admin, ac.sub} {
		if cc.check.Err != nil {
			errs = append(errs, cc.check.Err)
		}
	}
	return errs
}

// Invalidate drops both cached checks.
func (ac *AccessChecker) Invalidate() {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.admin, ac.sub = cachedCheck{}, cachedCheck{}
}

// InvalidateSubscription drops the cached subscription check, after a successful payment.
func (ac *AccessChecker) InvalidateSubscription() {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.sub = cachedCheck{}
}
