// Package auth implements the OIDC login against a Keycloak realm: the
// authorization-code flow with PKCE, access-token verification and the
// Redis-backed browser session that holds the tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	ErrInvalidIDToken      = errors.New("invalid id token")
)

// Endpoints is the subset of the OIDC discovery document the service uses.
type Endpoints struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
}

type ProviderConfig struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	HTTPClient   *http.Client
	DiscoveryTTL time.Duration
}

// Provider talks to the realm's OIDC endpoints. The discovery document is
// fetched lazily and cached for DiscoveryTTL; the signing keys live with it.
type Provider struct {
	cfg    ProviderConfig
	client *http.Client
	now    func() time.Time

	mu         sync.Mutex
	discovered *discovery
}

type discovery struct {
	oidc      *oidc.Provider
	endpoints Endpoints
	fetchedAt time.Time
}

func NewProvider(cfg ProviderConfig) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "profile", "email", "offline_access"}
	}
	if cfg.DiscoveryTTL <= 0 {
		cfg.DiscoveryTTL = time.Hour
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Provider{cfg: cfg, client: client, now: time.Now}
}

func (p *Provider) realmURL() string {
	return fmt.Sprintf("%s/realms/%s", p.cfg.BaseURL, url.PathEscape(p.cfg.Realm))
}

func (p *Provider) ClientID() string {
	return p.cfg.ClientID
}

// Endpoints returns the cached discovery document, refreshing it when it is
// older than DiscoveryTTL.
func (p *Provider) Endpoints(ctx context.Context) (Endpoints, error) {
	d, err := p.loadDiscovery(ctx)
	if err != nil {
		return Endpoints{}, err
	}
	return d.endpoints, nil
}

func (p *Provider) loadDiscovery(ctx context.Context) (*discovery, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.discovered != nil && p.now().Sub(p.discovered.fetchedAt) < p.cfg.DiscoveryTTL {
		return p.discovered, nil
	}

	d, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}
	p.discovered = d
	return d, nil
}

func (p *Provider) discover(ctx context.Context) (*discovery, error) {
	provider, err := oidc.NewProvider(p.clientContext(ctx), p.realmURL())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	var extra struct {
		JWKSURI            string `json:"jwks_uri"`
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, fmt.Errorf("%w: decode discovery document: %v", ErrProviderUnavailable, err)
	}

	endpoint := provider.Endpoint()
	endpoints := Endpoints{
		Issuer:                p.realmURL(),
		AuthorizationEndpoint: endpoint.AuthURL,
		TokenEndpoint:         endpoint.TokenURL,
		JWKSURI:               extra.JWKSURI,
		EndSessionEndpoint:    extra.EndSessionEndpoint,
	}
	if endpoints.AuthorizationEndpoint == "" || endpoints.TokenEndpoint == "" || endpoints.JWKSURI == "" {
		return nil, fmt.Errorf("%w: discovery document is incomplete", ErrProviderUnavailable)
	}
	if endpoints.EndSessionEndpoint == "" {
		endpoints.EndSessionEndpoint = p.realmURL() + "/protocol/openid-connect/logout"
	}
	return &discovery{oidc: provider, endpoints: endpoints, fetchedAt: p.now()}, nil
}

// verify checks a signed token from the realm with the cached key set.
func (p *Provider) verify(ctx context.Context, config *oidc.Config, raw string) (*oidc.IDToken, error) {
	d, err := p.loadDiscovery(ctx)
	if err != nil {
		return nil, err
	}
	return d.oidc.Verifier(config).Verify(p.clientContext(ctx), raw)
}

// VerifyIDToken checks an id_token issued to this client and bound to nonce.
func (p *Provider) VerifyIDToken(ctx context.Context, raw, nonce string) (*oidc.IDToken, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: provider returned no id_token", ErrInvalidIDToken)
	}
	token, err := p.verify(ctx, &oidc.Config{ClientID: p.cfg.ClientID, Now: p.now}, raw)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	if token.Nonce != nonce {
		return nil, fmt.Errorf("%w: nonce mismatch", ErrInvalidIDToken)
	}
	return token, nil
}

func (p *Provider) oauthConfig(endpoints Endpoints) *oauth2.Config {
	style := oauth2.AuthStyleInParams
	if p.cfg.ClientSecret != "" {
		style = oauth2.AuthStyleInHeader
	}
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURL,
		Scopes:       p.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   endpoints.AuthorizationEndpoint,
			TokenURL:  endpoints.TokenEndpoint,
			AuthStyle: style,
		},
	}
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(context.WithValue(ctx, oauth2.HTTPClient, p.client), p.client)
}

// AuthCodeURL builds the authorization redirect with a S256 PKCE challenge
// derived from verifier.
func (p *Provider) AuthCodeURL(ctx context.Context, state, nonce, verifier string) (string, error) {
	endpoints, err := p.Endpoints(ctx)
	if err != nil {
		return "", err
	}
	return p.oauthConfig(endpoints).AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("nonce", nonce),
	), nil
}

// Exchange redeems an authorization code for tokens. The returned id_token
// must carry nonce; a mismatch fails with ErrInvalidIDToken.
func (p *Provider) Exchange(ctx context.Context, code, verifier, nonce string) (StoredTokens, error) {
	endpoints, err := p.Endpoints(ctx)
	if err != nil {
		return StoredTokens{}, err
	}

	token, err := p.oauthConfig(endpoints).Exchange(p.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return StoredTokens{}, fmt.Errorf("exchange authorization code: %w", err)
	}

	tokens := tokensFromOAuth(token, p.now())
	if _, err := p.VerifyIDToken(ctx, tokens.IDToken, nonce); err != nil {
		return StoredTokens{}, err
	}
	return tokens, nil
}

// Refresh trades a refresh token for a new token set. A provider that does not
// rotate refresh tokens leaves the old one in place.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (StoredTokens, error) {
	if refreshToken == "" {
		return StoredTokens{}, errors.New("no refresh token")
	}
	endpoints, err := p.Endpoints(ctx)
	if err != nil {
		return StoredTokens{}, err
	}

	source := p.oauthConfig(endpoints).TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return StoredTokens{}, fmt.Errorf("refresh tokens: %w", err)
	}

	tokens := tokensFromOAuth(token, p.now())
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

// LogoutURL is the end-session redirect for idToken. Keycloak rejects the
// request without an id_token_hint, so an empty idToken yields "".
func (p *Provider) LogoutURL(ctx context.Context, idToken, postLogoutRedirect string) (string, error) {
	if idToken == "" {
		return "", nil
	}
	endpoints, err := p.Endpoints(ctx)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("post_logout_redirect_uri", postLogoutRedirect)
	params.Set("id_token_hint", idToken)
	return endpoints.EndSessionEndpoint + "?" + params.Encode(), nil
}
