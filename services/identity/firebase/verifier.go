// Package firebaseid verifies the ID tokens issued by Firebase Authentication.
package firebaseid

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
)

type tokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type Verifier struct {
	client tokenVerifier
}

var _ core.IdentityVerifier = (*Verifier)(nil)

func NewVerifier(ctx context.Context, conf core.IdentityConfig) (*Verifier, error) {
	var opts []option.ClientOption
	if conf.FirebaseCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(conf.FirebaseCredentials))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: conf.FirebaseProjectID}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "initializing firebase app")
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "initializing firebase auth")
	}
	return &Verifier{client: client}, nil
}

func (v *Verifier) VerifyIDToken(ctx context.Context, idToken string) (core.Identity, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return core.Identity{}, errors.Wrap(core.ErrInvalidIDToken, err.Error())
	}
	return core.Identity{
		UID:   token.UID,
		Email: claim(token.Claims, "email"),
		Name:  claim(token.Claims, "name"),
	}, nil
}

func claim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
