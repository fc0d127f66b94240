package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid access token")

// Claims are the access-token claims the service reads.
type Claims struct {
	jwt.RegisteredClaims
	Email             string `json:"email,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// User is the public view of the authenticated caller.
type User struct {
	Sub               string   `json:"sub"`
	PreferredUsername string   `json:"preferred_username"`
	Email             string   `json:"email"`
	Name              string   `json:"name"`
	Roles             []string `json:"roles"`
}

func (c *Claims) User() User {
	roles := c.RealmAccess.Roles
	if roles == nil {
		roles = []string{}
	}
	return User{
		Sub:               c.Subject,
		PreferredUsername: c.PreferredUsername,
		Email:             c.Email,
		Name:              c.Name,
		Roles:             roles,
	}
}

// Verifier validates RS256 access tokens issued by the realm. Signing keys come
// from the realm's JWKS and are refetched when a token names an unknown kid.
type Verifier struct {
	provider *Provider
	audience string
	now      func() time.Time
}

// NewVerifier checks tokens issued by provider. An empty audience skips the
// aud check.
func NewVerifier(provider *Provider, audience string) *Verifier {
	return &Verifier{
		provider: provider,
		audience: audience,
		now:      time.Now,
	}
}

func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	verified, err := v.provider.verify(ctx, &oidc.Config{
		ClientID:          v.audience,
		SkipClientIDCheck: v.audience == "",
		Now:               v.now,
	}, token)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{}
	if err := verified.Claims(claims); err != nil {
		return nil, fmt.Errorf("%w: decode claims: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	return claims, nil
}
