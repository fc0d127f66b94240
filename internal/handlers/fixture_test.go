package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"eigentask/backend/internal/auth"
	"eigentask/backend/internal/auth/authtest"
	"eigentask/backend/internal/cache"
	"eigentask/backend/internal/database"
	"eigentask/backend/internal/handlers"
	"eigentask/backend/internal/monitoring"
	"eigentask/backend/internal/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

const (
	frontendOrigin = "http://localhost:5173"
	cookieName     = "eigentask_sid"
)

type apiFixture struct {
	t      *testing.T
	router *gin.Engine
	idp    *authtest.IDP
	redis  *miniredis.Miniredis
	tokens *auth.TokenStore
	signer *auth.CookieSigner
	pool   *database.DatabasePool
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:   database.DriverSQLite,
		DSN:      "file::memory:",
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	require.NoError(t, database.Migrate(pool.DB))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	idp := authtest.NewIDP(t)
	provider := auth.NewProvider(auth.ProviderConfig{
		BaseURL:      idp.URL(),
		Realm:        authtest.Realm,
		ClientID:     authtest.ClientID,
		ClientSecret: authtest.ClientSecret,
		RedirectURL:  "http://localhost:8000/auth/callback",
	})
	tokens := auth.NewTokenStore(client, "sess:", time.Hour)
	states := auth.NewLoginStateStore(client, "sess:")
	signer := auth.NewCookieSigner("test-secret")
	authenticator := auth.NewAuthenticator(auth.NewVerifier(provider, authtest.ClientID), tokens, provider, signer)

	taskCache := cache.NewMultiLevelCache(cache.NewMemoryCache(100, time.Minute), cache.NewRedisCache(client, "cache:"))
	taskService := services.NewCachedTaskService(services.NewTaskService(), taskCache, time.Minute)

	health := monitoring.NewHealthChecker(time.Second)
	health.Register("database", pool.HealthContext)

	router := handlers.NewRouter(handlers.RouterDeps{
		DB:             pool.DB,
		TaskService:    taskService,
		SessionService: services.NewSessionService(),
		Invalidator:    taskService,
		Authenticator:  authenticator,
		Auth: handlers.NewAuthHandler(provider, states, tokens, signer, frontendOrigin, handlers.SessionCookieConfig{
			Name:   cookieName,
			MaxAge: time.Hour,
		}),
		CookieName:     cookieName,
		FrontendOrigin: frontendOrigin,
		Metrics:        monitoring.NewMetrics(),
		Health:         health,
		StatsSources: map[string]monitoring.StatsFunc{
			"cache": taskService.CacheStats,
		},
	})

	return &apiFixture{t: t, router: router, idp: idp, redis: mr, tokens: tokens, signer: signer, pool: pool}
}

// request sends an authenticated request as sub; an empty sub sends none.
func (f *apiFixture) request(method, path, sub string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			data, err := json.Marshal(body)
			require.NoError(f.t, err)
			raw = string(data)
		}
		reader = bytes.NewReader([]byte(raw))
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if sub != "" {
		req.Header.Set("Authorization", "Bearer "+f.idp.AccessToken(f.t, sub))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (f *apiFixture) createTask(sub, title string) handlers.TaskResponse {
	f.t.Helper()
	w := f.request(http.MethodPost, "/tasks", sub, map[string]interface{}{"title": title})
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[handlers.TaskResponse](f.t, w)
}
