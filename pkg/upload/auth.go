package upload

import (
	"context"
	"errors"
	"net/url"
)

// ErrNoCredentials is returned by an Authenticator that has nothing to offer.
var ErrNoCredentials = errors.New("no credentials available")

// Authenticator supplies credentials when a transfer target demands them.
// It is consulted synchronously during the session and must not prompt.
type Authenticator interface {
	Credentials(ctx context.Context, target *url.URL) (username, password string, err error)
}

// StaticAuthenticator answers every challenge with one fixed pair.
type StaticAuthenticator struct {
	Username string
	Password string
}

var _ Authenticator = StaticAuthenticator{}

func (a StaticAuthenticator) Credentials(context.Context, *url.URL) (string, string, error) {
	if a.Username == "" {
		return "", "", ErrNoCredentials
	}

	return a.Username, a.Password, nil
}
