package auth

import (
	"context"
	"errors"
	"log"
	"time"
)

var ErrUnauthenticated = errors.New("not authenticated")

// Authenticator resolves the caller of a request, either from a bearer access
// token or from a browser session id.
type Authenticator struct {
	verifier *Verifier
	tokens   *TokenStore
	provider *Provider
	signer   *CookieSigner
	now      func() time.Time
}

func NewAuthenticator(verifier *Verifier, tokens *TokenStore, provider *Provider, signer *CookieSigner) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		tokens:   tokens,
		provider: provider,
		signer:   signer,
		now:      time.Now,
	}
}

// Bearer verifies an access token presented in the Authorization header.
func (a *Authenticator) Bearer(ctx context.Context, token string) (*Claims, error) {
	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return nil, err
		}
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

// Cookie authenticates a signed session cookie value.
func (a *Authenticator) Cookie(ctx context.Context, value string) (*Claims, error) {
	sid, ok := a.signer.Verify(value)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return a.Session(ctx, sid)
}

// Session loads the tokens stored for sid and verifies the access token. An
// access token close to expiry is refreshed first and the new token set is
// written back. A session that cannot be refreshed is dropped.
func (a *Authenticator) Session(ctx context.Context, sid string) (*Claims, error) {
	if sid == "" {
		return nil, ErrUnauthenticated
	}
	tokens, err := a.tokens.Get(ctx, sid)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	if tokens.IsExpired(a.now()) {
		refreshed, err := a.provider.Refresh(ctx, tokens.RefreshToken)
		if err != nil {
			if errors.Is(err, ErrProviderUnavailable) {
				return nil, err
			}
			log.Printf("auth: refresh failed, dropping session: %v", err)
			_ = a.tokens.Delete(ctx, sid)
			return nil, ErrUnauthenticated
		}
		if refreshed.IDToken == "" {
			refreshed.IDToken = tokens.IDToken
		}
		if err := a.tokens.Set(ctx, sid, refreshed); err != nil {
			return nil, err
		}
		tokens = refreshed
	}

	return a.Bearer(ctx, tokens.AccessToken)
}

// Tokens returns the stored token set of sid.
func (a *Authenticator) Tokens(ctx context.Context, sid string) (StoredTokens, error) {
	return a.tokens.Get(ctx, sid)
}

func (a *Authenticator) Store() *TokenStore {
	return a.tokens
}
