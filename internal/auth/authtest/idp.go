// Package authtest runs a fake Keycloak realm for tests: discovery, JWKS, an
// authorization endpoint that approves every login and a token endpoint that
// accepts a fixed authorization code and refresh token.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

const (
	Realm        = "test"
	ClientID     = "eigentask-test"
	ClientSecret = "test-secret"
	KeyID        = "test-key"

	// GoodCode is the only authorization code the token endpoint accepts.
	GoodCode = "good-code"
	// GoodRefreshToken is the only refresh token the token endpoint accepts.
	GoodRefreshToken = "good-refresh"
)

type IDP struct {
	Server *httptest.Server
	Key    *rsa.PrivateKey

	mu             sync.Mutex
	subject        string
	nonce          string
	tokenRequests  []url.Values
	discoveryCalls int
	jwksCalls      int
}

func NewIDP(t testing.TB) *IDP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	idp := &IDP{Key: key, subject: "user-1"}
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/"+Realm+"/.well-known/openid-configuration", idp.discovery)
	mux.HandleFunc("/realms/"+Realm+"/protocol/openid-connect/auth", idp.authorize)
	mux.HandleFunc("/realms/"+Realm+"/protocol/openid-connect/certs", idp.certs)
	mux.HandleFunc("/realms/"+Realm+"/protocol/openid-connect/token", idp.token)
	idp.Server = httptest.NewServer(mux)
	t.Cleanup(idp.Server.Close)
	return idp
}

func (i *IDP) URL() string {
	return i.Server.URL
}

func (i *IDP) Issuer() string {
	return i.Server.URL + "/realms/" + Realm
}

// SetSubject changes the sub of tokens issued by the token endpoint.
func (i *IDP) SetSubject(sub string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.subject = sub
}

func (i *IDP) TokenRequests() []url.Values {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]url.Values(nil), i.tokenRequests...)
}

func (i *IDP) DiscoveryCalls() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.discoveryCalls
}

func (i *IDP) JWKSCalls() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.jwksCalls
}

// Claims returns valid access-token claims for sub that expire after ttl.
func (i *IDP) Claims(sub string, ttl time.Duration) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":                i.Issuer(),
		"sub":                sub,
		"aud":                ClientID,
		"iat":                now.Unix(),
		"exp":                now.Add(ttl).Unix(),
		"email":              sub + "@example.com",
		"name":               "Test User",
		"preferred_username": sub,
		"realm_access":       map[string]interface{}{"roles": []string{"user"}},
	}
}

// Sign signs claims with the realm key.
func (i *IDP) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	return i.SignWithKey(t, claims, i.Key, KeyID)
}

func (i *IDP) SignWithKey(t testing.TB, claims jwt.MapClaims, key *rsa.PrivateKey, kid string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// AccessToken is a valid one-hour token for sub.
func (i *IDP) AccessToken(t testing.TB, sub string) string {
	t.Helper()
	return i.Sign(t, i.Claims(sub, time.Hour))
}

// Authorize follows an authorization URL as a signed-in browser would and
// returns the query the provider sends back to the redirect URI.
func (i *IDP) Authorize(t testing.TB, authURL string) url.Values {
	t.Helper()

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(authURL)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("authorize: unexpected status %d", resp.StatusCode)
	}

	location, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("authorize: bad redirect: %v", err)
	}
	return location.Query()
}

// authorize approves every request: it remembers the nonce for the next
// id_token and redirects back with GoodCode.
func (i *IDP) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || q.Get("client_id") != ClientID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	i.mu.Lock()
	i.nonce = q.Get("nonce")
	i.mu.Unlock()

	back := url.Values{}
	back.Set("code", GoodCode)
	back.Set("state", q.Get("state"))
	redirect.RawQuery = back.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (i *IDP) discovery(w http.ResponseWriter, _ *http.Request) {
	i.mu.Lock()
	i.discoveryCalls++
	i.mu.Unlock()

	base := i.Issuer() + "/protocol/openid-connect"
	writeJSON(w, http.StatusOK, map[string]string{
		"issuer":                 i.Issuer(),
		"authorization_endpoint": base + "/auth",
		"token_endpoint":         base + "/token",
		"jwks_uri":               base + "/certs",
	})
}

func (i *IDP) certs(w http.ResponseWriter, _ *http.Request) {
	i.mu.Lock()
	i.jwksCalls++
	i.mu.Unlock()

	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       &i.Key.PublicKey,
			KeyID:     KeyID,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		}},
	})
}

func (i *IDP) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	i.mu.Lock()
	i.tokenRequests = append(i.tokenRequests, r.PostForm)
	sub := i.subject
	nonce := i.nonce
	i.mu.Unlock()

	if id, secret, ok := r.BasicAuth(); !ok || id != ClientID || secret != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") != GoodCode || r.PostForm.Get("code_verifier") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token":  i.signInternal(i.Claims(sub, 5*time.Minute)),
			"refresh_token": GoodRefreshToken,
			"id_token":      i.signInternal(i.idTokenClaims(sub, nonce)),
			"token_type":    "Bearer",
			"expires_in":    300,
		})
	case "refresh_token":
		if r.PostForm.Get("refresh_token") != GoodRefreshToken {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": i.signInternal(i.Claims(sub, 5*time.Minute)),
			"token_type":   "Bearer",
			"expires_in":   300,
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (i *IDP) idTokenClaims(sub, nonce string) jwt.MapClaims {
	claims := i.Claims(sub, 5*time.Minute)
	claims["azp"] = ClientID
	if nonce != "" {
		claims["nonce"] = nonce
	}
	return claims
}

func (i *IDP) signInternal(claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = KeyID
	signed, _ := token.SignedString(i.Key)
	return signed
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
