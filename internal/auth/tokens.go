package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

var ErrSessionNotFound = errors.New("login session not found")

const (
	defaultTokenLifetime = 300 * time.Second
	expirySkew           = 60 * time.Second
)

// StoredTokens is the token set kept server-side for a browser session. Only
// the opaque session id ever reaches the browser.
type StoredTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
}

// IsExpired reports whether the access token expires within the next minute.
func (t StoredTokens) IsExpired(now time.Time) bool {
	if t.ExpiresAt == 0 {
		return true
	}
	return !now.Add(expirySkew).Before(time.Unix(t.ExpiresAt, 0))
}

func tokensFromOAuth(token *oauth2.Token, now time.Time) StoredTokens {
	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = now.Add(defaultTokenLifetime)
	}
	tokens := StoredTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiry.Unix(),
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		tokens.IDToken = idToken
	}
	return tokens
}

// TokenStore keeps StoredTokens in Redis under prefix+sid.
type TokenStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewTokenStore(client redis.UniversalClient, prefix string, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *TokenStore) TTL() time.Duration {
	return s.ttl
}

// Create stores tokens under a fresh session id and returns the id.
func (s *TokenStore) Create(ctx context.Context, tokens StoredTokens) (string, error) {
	sid, err := newOpaqueID()
	if err != nil {
		return "", err
	}
	if err := s.Set(ctx, sid, tokens); err != nil {
		return "", err
	}
	return sid, nil
}

func (s *TokenStore) Set(ctx context.Context, sid string, tokens StoredTokens) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	if err := s.client.SetEx(ctx, s.prefix+sid, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	return nil
}

// Get returns ErrSessionNotFound for unknown ids and for unreadable records.
func (s *TokenStore) Get(ctx context.Context, sid string) (StoredTokens, error) {
	data, err := s.client.Get(ctx, s.prefix+sid).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return StoredTokens{}, ErrSessionNotFound
		}
		return StoredTokens{}, fmt.Errorf("failed to load tokens: %w", err)
	}

	var tokens StoredTokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		return StoredTokens{}, ErrSessionNotFound
	}
	return tokens, nil
}

func (s *TokenStore) Delete(ctx context.Context, sid string) error {
	return s.client.Del(ctx, s.prefix+sid).Err()
}

// newOpaqueID joins two random UUIDs into an unguessable identifier.
func newOpaqueID() (string, error) {
	a, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	b, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return a.String() + b.String(), nil
}
