package core

import (
	"context"

	"github.com/pkg/errors"
)

var ErrInvalidIDToken = errors.New("invalid or expired ID token")

// Identity is a caller authenticated by an external identity provider.
type Identity struct {
	UID   string
	Email string
	Name  string
}

// IdentityVerifier is any identity provider able to verify the ID tokens it issued.
type IdentityVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (Identity, error)
}
