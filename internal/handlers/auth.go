package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"eigentask/backend/internal/auth"
	"eigentask/backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

type SessionCookieConfig struct {
	Name   string
	Domain string
	Secure bool
	MaxAge time.Duration
}

// AuthHandler runs the browser login against the identity provider. Tokens
// stay in Redis; the browser only receives an opaque session id cookie.
type AuthHandler struct {
	provider       *auth.Provider
	states         *auth.LoginStateStore
	tokens         *auth.TokenStore
	signer         *auth.CookieSigner
	frontendOrigin string
	cookie         SessionCookieConfig
}

func NewAuthHandler(provider *auth.Provider, states *auth.LoginStateStore, tokens *auth.TokenStore, signer *auth.CookieSigner, frontendOrigin string, cookie SessionCookieConfig) *AuthHandler {
	return &AuthHandler{
		provider:       provider,
		states:         states,
		tokens:         tokens,
		signer:         signer,
		frontendOrigin: frontendOrigin,
		cookie:         cookie,
	}
}

// Login redirects to the provider's authorization endpoint with a fresh
// state, nonce and PKCE challenge.
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	returnTo := auth.SanitizeReturnTo(c.Query("return_to"), h.frontendOrigin)

	state, err := auth.NewLoginState(returnTo)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.states.Save(ctx, state); err != nil {
		respondError(c, err)
		return
	}

	redirect, err := h.provider.AuthCodeURL(ctx, state.State, state.Nonce, state.Verifier)
	if err != nil {
		respondProviderError(c, err)
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, redirect)
}

// Callback finishes the login: the state must match a pending login, the code
// is exchanged for tokens, the id_token nonce must match the login and the
// session cookie is set.
func (h *AuthHandler) Callback(c *gin.Context) {
	ctx := c.Request.Context()

	state, err := h.states.Take(ctx, c.Query("state"))
	if err != nil {
		if !errors.Is(err, auth.ErrUnknownState) {
			log.Printf("auth: failed to load login state: %v", err)
		}
		c.Redirect(http.StatusFound, h.frontendOrigin)
		return
	}

	if providerErr := c.Query("error"); providerErr != "" {
		log.Printf("auth: provider returned %s: %s", providerErr, c.Query("error_description"))
		c.Redirect(http.StatusFound, h.frontendOrigin)
		return
	}
	code := c.Query("code")
	if code == "" {
		badRequest(c, "code is required")
		return
	}

	tokens, err := h.provider.Exchange(ctx, code, state.Verifier, state.Nonce)
	if errors.Is(err, auth.ErrInvalidIDToken) {
		log.Printf("auth: rejected id token: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_id_token",
			"message": "Login response did not match this login attempt",
		})
		return
	}
	if err != nil {
		log.Printf("auth: code exchange failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "token_exchange_failed",
			"message": "Could not complete login with the identity provider",
		})
		return
	}

	sid, err := h.tokens.Create(ctx, tokens)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setSessionCookie(c, h.signer.Sign(sid), int(h.cookie.MaxAge.Seconds()))
	// ReturnTo was sanitized at login and never left the server.
	returnTo := state.ReturnTo
	if returnTo == "" {
		returnTo = h.frontendOrigin
	}
	c.Redirect(http.StatusFound, returnTo)
}

// Logout drops the server-side session and, when an id token is known, sends
// the browser through the provider's end-session endpoint.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	returnTo := auth.SanitizeReturnTo(c.Query("return_to"), h.frontendOrigin)

	var idToken string
	if value, err := c.Cookie(h.cookie.Name); err == nil && value != "" {
		if sid, ok := h.signer.Verify(value); ok {
			if stored, err := h.tokens.Get(ctx, sid); err == nil {
				idToken = stored.IDToken
			}
			if err := h.tokens.Delete(ctx, sid); err != nil {
				log.Printf("auth: failed to delete session: %v", err)
			}
		}
		h.setSessionCookie(c, "", -1)
	}

	endSession, err := h.provider.LogoutURL(ctx, idToken, returnTo)
	if err != nil {
		log.Printf("auth: end-session endpoint unavailable: %v", err)
	}
	if endSession == "" {
		c.Redirect(http.StatusFound, returnTo)
		return
	}
	c.Redirect(http.StatusFound, endSession)
}

// Status reports whether the caller is signed in without failing with 401.
func (h *AuthHandler) Status(c *gin.Context) {
	claims, ok := middleware.UserClaims(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": claims.User()})
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}

func respondProviderError(c *gin.Context, err error) {
	if errors.Is(err, auth.ErrProviderUnavailable) {
		log.Printf("auth: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "identity_provider_unavailable",
			"message": "Identity provider is unavailable",
		})
		return
	}
	respondError(c, err)
}
