// Package access decides whether a caller may view gated content.
package access

import (
	"context"
)

// Check is the outcome of one remote boolean check (isCallerAdmin, isSubscriptionActive).
// A check that is not loaded yet or that failed never grants access.
type Check struct {
	Value  bool
	Err    error
	Loaded bool
}

func Loaded(value bool, err error) Check {
	return Check{Value: value, Err: err, Loaded: true}
}

func (c Check) granted() bool {
	return c.Loaded && c.Err == nil && c.Value
}

// Decide computes hasAccess = isAdmin || isSubscribed, failing locked.
func Decide(isAdmin, isSubscribed Check) bool {
	return isAdmin.granted() || isSubscribed.granted()
}

// Decision is the resolved access of a caller.
type Decision struct {
	Authenticated bool `json:"authenticated"`
	IsAdmin       bool `json:"isAdmin"`
	IsSubscribed  bool `json:"isSubscribed"`
	HasAccess     bool `json:"hasAccess"`
}

type (
	AdminChecker interface {
		IsAdmin(ctx context.Context, userID string) (bool, error)
	}

	SubscriptionChecker interface {
		IsActive(ctx context.Context, userID string) (bool, error)
	}
)

// Checker resolves the Decision of a caller from the user & subscription services.
type Checker struct {
	admins AdminChecker
	subs   SubscriptionChecker
}

func NewChecker(admins AdminChecker, subs SubscriptionChecker) *Checker {
	return &Checker{admins: admins, subs: subs}
}

// Decide never returns an error: a failing check resolves to false.
// The errors are returned alongside for logging.
func (c *Checker) Decide(ctx context.Context, userID string) (Decision, []error) {
	if userID == "" {
		return Decision{}, nil
	}
	isAdmin := Loaded(c.admins.IsAdmin(ctx, userID))
	isSubscribed := Loaded(c.subs.IsActive(ctx, userID))

	var errs []error
	for _, chk := range []Check{isAdmin, isSubscribed} {
		if chk.Err != nil {
			errs = append(errs, chk.Err)
		}
	}
	return Decision{
		Authenticated: true,
		IsAdmin:       isAdmin.granted(),
		IsSubscribed:  isSubscribed.granted(),
		HasAccess:     Decide(isAdmin, isSubscribed),
	}, errs
}
