package client

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
)

// Session holds the identity of the caller: the API token.
type Session struct {
	mu       sync.RWMutex
	token    string
	username string
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

func (s *Session) set(username, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username, s.token = username, token
}

// Clear forgets the identity; the next calls are anonymous.
func (s *Session) Clear() {
	s.set("", "")
}

type (
	credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	tokenResponse struct {
		Token string `json:"token"`
	}
)

// msgAlreadyAuthenticated rejects a login made over a live identity.
const msgAlreadyAuthenticated = "User is already authenticated"

func alreadyAuthenticated(err error) bool {
	apiErr, ok := errors.Cause(err).(*APIError)
	return ok && strings.Contains(apiErr.Message, msgAlreadyAuthenticated)
}

// Login authenticates the caller. Transport failures are retried once; rejected credentials are not.
// A login rejected because an identity is already set clears that identity and is retried once.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var res tokenResponse
	login := func() error {
		return c.call(ctx, rest.Post, "/users/login", nil, credentials{Username: username, Password: password}, &res)
	}
	err := login()
	switch {
	case err == nil:
	case alreadyAuthenticated(err):
		c.Session.Clear()
		err = login()
	case statusCode(err) == 0 && ctx.Err() == nil:
		err = login()
	}
	if err != nil {
		return errors.Wrap(err, "logging in")
	}
	c.Session.set(username, res.Token)
	return nil
}

// Logout clears the session.
func (c *Client) Logout() {
	c.Session.Clear()
}

// RefreshToken swaps the session token for a fresh one.
func (c *Client) RefreshToken(ctx context.Context) error {
	if !c.Session.Authenticated() {
		return ErrUnauthenticated
	}
	var res tokenResponse
	if err := c.call(ctx, rest.Post, "/users/token-refresh", nil, nil, &res); err != nil {
		if IsUnauthenticated(err) {
			c.Session.Clear()
		}
		return errors.Wrap(err, "refreshing token")
	}
	c.Session.set(c.Session.Username(), res.Token)
	return nil
}
