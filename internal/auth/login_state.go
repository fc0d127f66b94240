package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

var ErrUnknownState = errors.New("unknown or expired login state")

const LoginStateTTL = 10 * time.Minute

// LoginState is what the callback needs to finish a login started by
// /auth/login.
type LoginState struct {
	State    string `json:"-"`
	Nonce    string `json:"nonce"`
	Verifier string `json:"verifier"`
	ReturnTo string `json:"return_to"`
}

// NewLoginState generates a state, nonce and PKCE verifier.
func NewLoginState(returnTo string) (LoginState, error) {
	state, err := newOpaqueID()
	if err != nil {
		return LoginState{}, err
	}
	nonce, err := newOpaqueID()
	if err != nil {
		return LoginState{}, err
	}
	return LoginState{
		State:    state,
		Nonce:    nonce,
		Verifier: oauth2.GenerateVerifier(),
		ReturnTo: returnTo,
	}, nil
}

// LoginStateStore keeps pending logins in Redis, keyed by state. A state can
// be taken once.
type LoginStateStore struct {
	client redis.UniversalClient
	prefix string
}

func NewLoginStateStore(client redis.UniversalClient, prefix string) *LoginStateStore {
	return &LoginStateStore{client: client, prefix: prefix + "login:"}
}

func (s *LoginStateStore) Save(ctx context.Context, state LoginState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal login state: %w", err)
	}
	if err := s.client.SetEx(ctx, s.prefix+state.State, data, LoginStateTTL).Err(); err != nil {
		return fmt.Errorf("failed to store login state: %w", err)
	}
	return nil
}

func (s *LoginStateStore) Take(ctx context.Context, state string) (LoginState, error) {
	if state == "" {
		return LoginState{}, ErrUnknownState
	}

	data, err := s.client.GetDel(ctx, s.prefix+state).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return LoginState{}, ErrUnknownState
		}
		return LoginState{}, fmt.Errorf("failed to load login state: %w", err)
	}

	var stored LoginState
	if err := json.Unmarshal(data, &stored); err != nil {
		return LoginState{}, ErrUnknownState
	}
	stored.State = state
	return stored, nil
}
