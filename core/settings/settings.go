// Package settings stores the application settings editable at runtime by admins
// (admin panel password, payment processor configuration).
package settings

import (
	"context"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
)

// Keys
const (
	KeyAdminPasswordHash      = "admin_password_hash"
	KeyStripeSecretKey        = "stripe_secret_key"
	KeyStripeAllowedCountries = "stripe_allowed_countries"
)

var ErrNotFound = core.NewNotFoundError("setting")

type Repository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}
