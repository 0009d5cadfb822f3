package rpc

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/copy-go/internal/tokenfile"
)

// ErrNotLoggedIn is returned when no saved token exists at the token path.
var ErrNotLoggedIn = errors.New("rpc: not logged in")

// Authenticator attaches credentials to an outgoing request. It is applied
// to every HTTP attempt, retries included.
type Authenticator interface {
	Sign(req *http.Request) error
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(req *http.Request) error

// Sign calls f(req).
func (f AuthenticatorFunc) Sign(req *http.Request) error {
	return f(req)
}

// NoAuth leaves requests unsigned.
type NoAuth struct{}

// Sign does nothing.
func (NoAuth) Sign(*http.Request) error { return nil }

// TokenAuthenticator signs requests with a bearer token from an
// oauth2.TokenSource.
type TokenAuthenticator struct {
	src oauth2.TokenSource
}

// NewTokenAuthenticator wraps src. Token caching is left to src.
func NewTokenAuthenticator(src oauth2.TokenSource) *TokenAuthenticator {
	return &TokenAuthenticator{src: src}
}

// Sign sets the Authorization header from the current token.
func (a *TokenAuthenticator) Sign(req *http.Request) error {
	tok, err := a.src.Token()
	if err != nil {
		return fmt.Errorf("rpc: obtaining token: %w", err)
	}

	tok.SetAuthHeader(req)

	return nil
}

// TokenSourceFromFile loads the saved token at path. The token exchange
// that produced it happens outside this module, so the source never
// refreshes; an expired token is reported by the server as 401.
func TokenSourceFromFile(path string, logger *slog.Logger) (oauth2.TokenSource, error) {
	f, err := tokenfile.Load(path)
	if err != nil {
		return nil, fmt.Errorf("rpc: loading token: %w", err)
	}

	if f == nil {
		return nil, ErrNotLoggedIn
	}

	if !f.Token.Valid() {
		logger.Warn("saved token is expired or empty, requests may be rejected",
			slog.String("path", path),
			slog.Time("expiry", f.Token.Expiry),
		)
	}

	return oauth2.ReuseTokenSource(f.Token, oauth2.StaticTokenSource(f.Token)), nil
}
