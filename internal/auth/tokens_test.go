package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestStoredTokens_IsExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	assert.True(t, StoredTokens{}.IsExpired(now), "missing expiry counts as expired")
	assert.True(t, StoredTokens{ExpiresAt: now.Unix() + 60}.IsExpired(now), "within the skew")
	assert.False(t, StoredTokens{ExpiresAt: now.Unix() + 61}.IsExpired(now))
	assert.True(t, StoredTokens{ExpiresAt: now.Unix() - 1}.IsExpired(now))
}

func TestTokensFromOAuth(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	token := (&oauth2.Token{AccessToken: "a", RefreshToken: "r"}).WithExtra(map[string]interface{}{"id_token": "i"})
	tokens := tokensFromOAuth(token, now)
	assert.Equal(t, StoredTokens{AccessToken: "a", RefreshToken: "r", IDToken: "i", ExpiresAt: now.Unix() + 300}, tokens)

	token = &oauth2.Token{AccessToken: "a", Expiry: now.Add(time.Hour)}
	assert.Equal(t, now.Unix()+3600, tokensFromOAuth(token, now).ExpiresAt)
}

func TestTokenStore_Lifecycle(t *testing.T) {
	client, mr := newTestRedis(t)
	store := NewTokenStore(client, "sess:", time.Hour)
	ctx := context.Background()

	sid, err := store.Create(ctx, StoredTokens{AccessToken: "a", RefreshToken: "r", ExpiresAt: 42})
	require.NoError(t, err)
	assert.Len(t, sid, 72)
	assert.True(t, mr.Exists("sess:"+sid))
	assert.Equal(t, time.Hour, mr.TTL("sess:"+sid))

	got, err := store.Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "a", got.AccessToken)
	assert.Equal(t, int64(42), got.ExpiresAt)

	require.NoError(t, store.Delete(ctx, sid))
	_, err = store.Get(ctx, sid)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTokenStore_UnreadableRecord(t *testing.T) {
	client, mr := newTestRedis(t)
	store := NewTokenStore(client, "sess:", time.Hour)

	require.NoError(t, mr.Set("sess:broken", "{not json"))
	_, err := store.Get(context.Background(), "broken")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTokenStore_Expiry(t *testing.T) {
	client, mr := newTestRedis(t)
	store := NewTokenStore(client, "sess:", time.Minute)
	ctx := context.Background()

	sid, err := store.Create(ctx, StoredTokens{AccessToken: "a"})
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, sid)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLoginStateStore_TakeOnce(t *testing.T) {
	client, mr := newTestRedis(t)
	store := NewLoginStateStore(client, "sess:")
	ctx := context.Background()

	state, err := NewLoginState("http://app.example.com/today")
	require.NoError(t, err)
	assert.NotEmpty(t, state.State)
	assert.NotEmpty(t, state.Nonce)
	assert.GreaterOrEqual(t, len(state.Verifier), 43)

	require.NoError(t, store.Save(ctx, state))
	assert.Equal(t, LoginStateTTL, mr.TTL("sess:login:"+state.State))

	got, err := store.Take(ctx, state.State)
	require.NoError(t, err)
	assert.Equal(t, state, got)

	_, err = store.Take(ctx, state.State)
	assert.ErrorIs(t, err, ErrUnknownState)

	_, err = store.Take(ctx, "")
	assert.ErrorIs(t, err, ErrUnknownState)
}

func TestLoginStateStore_Expires(t *testing.T) {
	client, mr := newTestRedis(t)
	store := NewLoginStateStore(client, "sess:")
	ctx := context.Background()

	state, err := NewLoginState("/")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, state))

	mr.FastForward(LoginStateTTL + time.Second)
	_, err = store.Take(ctx, state.State)
	assert.ErrorIs(t, err, ErrUnknownState)
}
