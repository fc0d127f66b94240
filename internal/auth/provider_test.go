package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"eigentask/backend/internal/auth/authtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(idp *authtest.IDP) *Provider {
	return NewProvider(ProviderConfig{
		BaseURL:      idp.URL() + "/",
		Realm:        authtest.Realm,
		ClientID:     authtest.ClientID,
		ClientSecret: authtest.ClientSecret,
		RedirectURL:  "http://api.example.com/auth/callback",
	})
}

func TestProvider_DiscoveryIsCached(t *testing.T) {
	idp := authtest.NewIDP(t)
	p := newTestProvider(idp)
	now := time.Now()
	p.now = func() time.Time { return now }
	ctx := context.Background()

	endpoints, err := p.Endpoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, idp.Issuer(), endpoints.Issuer)
	assert.Equal(t, idp.Issuer()+"/protocol/openid-connect/logout", endpoints.EndSessionEndpoint)

	_, err = p.Endpoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, idp.DiscoveryCalls())

	now = now.Add(time.Hour)
	_, err = p.Endpoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, idp.DiscoveryCalls())
}

func TestProvider_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p := NewProvider(ProviderConfig{BaseURL: srv.URL, Realm: "missing", ClientID: "x"})
	_, err := p.Endpoints(context.Background())
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestProvider_AuthCodeURL(t *testing.T) {
	idp := authtest.NewIDP(t)
	p := newTestProvider(idp)

	raw, err := p.AuthCodeURL(context.Background(), "state-1", "nonce-1", "verifier-1")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, idp.Issuer()+"/protocol/openid-connect/auth", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, authtest.ClientID, q.Get("client_id"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "nonce-1", q.Get("nonce"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.NotEqual(t, "verifier-1", q.Get("code_challenge"))
	assert.Equal(t, "openid profile email offline_access", q.Get("scope"))
	assert.Equal(t, "http://api.example.com/auth/callback", q.Get("redirect_uri"))
}

// authorize runs the authorization redirect against idp and returns the code.
func authorize(t *testing.T, p *Provider, idp *authtest.IDP, nonce string) string {
	t.Helper()
	raw, err := p.AuthCodeURL(context.Background(), "state-1", nonce, "verifier-1")
	require.NoError(t, err)
	back := idp.Authorize(t, raw)
	require.Equal(t, "state-1", back.Get("state"))
	return back.Get("code")
}

func TestProvider_Exchange(t *testing.T) {
	idp := authtest.NewIDP(t)
	p := newTestProvider(idp)
	code := authorize(t, p, idp, "nonce-1")

	tokens, err := p.Exchange(context.Background(), code, "verifier-1", "nonce-1")
	require.NoError(t, err)

	assert.NotEmpty(t, tokens.AccessToken)
	assert.Equal(t, authtest.GoodRefreshToken, tokens.RefreshToken)
	assert.NotEmpty(t, tokens.IDToken)
	assert.InDelta(t, time.Now().Add(300*time.Second).Unix(), tokens.ExpiresAt, 5)

	requests := idp.TokenRequests()
	require.Len(t, requests, 1)
	assert.Equal(t, "verifier-1", requests[0].Get("code_verifier"))

	_, err = p.Exchange(context.Background(), "bad-code", "verifier-1", "nonce-1")
	assert.Error(t, err)
}

func TestProvider_ExchangeChecksNonce(t *testing.T) {
	idp := authtest.NewIDP(t)
	p := newTestProvider(idp)
	code := authorize(t, p, idp, "nonce-1")

	_, err := p.Exchange(context.Background(), code, "verifier-1", "nonce-from-another-login")
	assert.ErrorIs(t, err, ErrInvalidIDToken)
}

func TestProvider_VerifyIDToken(t *testing.T) {
	idp := authtest.NewIDP(t)
	p := newTestProvider(idp)
	ctx := context.Background()

	claims := idp.Claims("alice", time.Hour)
	claims["nonce"] = "n-1"

	token, err := p.VerifyIDToken(ctx, idp.Sign(t, claims), "n-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", token.Subject)

	_, err = p.VerifyIDToken(ctx, "", "n-1")
	assert.ErrorIs(t, err, ErrInvalidIDToken)

	claims["aud"] = "another-client"
	_, err = p.VerifyIDToken(ctx, idp.Sign(t, claims), "n-1")
	assert.ErrorIs(t, err, ErrInvalidIDToken)
}

func TestProvider_Refresh(t *testing.T) {
	idp := authtest.NewIDP(t)
	p := newTestProvider(idp)
	ctx := context.Background()

	tokens, err := p.Refresh(ctx, authtest.GoodRefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.Equal(t, authtest.GoodRefreshToken, tokens.RefreshToken, "refresh token is kept when not rotated")

	_, err = p.Refresh(ctx, "revoked")
	assert.Error(t, err)

	_, err = p.Refresh(ctx, "")
	assert.Error(t, err)
}

func TestProvider_LogoutURL(t *testing.T) {
	idp := authtest.NewIDP(t)
	p := newTestProvider(idp)
	ctx := context.Background()

	empty, err := p.LogoutURL(ctx, "", "http://app.example.com")
	require.NoError(t, err)
	assert.Empty(t, empty)

	raw, err := p.LogoutURL(ctx, "id-token", "http://app.example.com")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/realms/test/protocol/openid-connect/logout", u.Path)
	assert.Equal(t, "id-token", u.Query().Get("id_token_hint"))
	assert.Equal(t, "http://app.example.com", u.Query().Get("post_logout_redirect_uri"))
}
