package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/docflow-gateway/internal/console/handler"
	"github.com/xela07ax/docflow-gateway/internal/console/service"
	"github.com/xela07ax/docflow-gateway/internal/domain"
	"github.com/xela07ax/docflow-gateway/internal/repository/postgres"
)

type fakeUsers struct {
	users map[string]*domain.User
}

func (f *fakeUsers) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	return f.users[username], nil
}

type fakeRequests struct {
	requests  map[string]*domain.Request
	summaries []domain.RequestSummary
	stats     *domain.DashboardStats
}

func (f *fakeRequests) GetRequest(_ context.Context, id string) (*domain.Request, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return req, nil
}

func (f *fakeRequests) ListRequests(_ context.Context, _ int) ([]domain.RequestSummary, error) {
	return f.summaries, nil
}

func (f *fakeRequests) GetStats(_ context.Context) (*domain.DashboardStats, error) {
	return f.stats, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeRequests) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("operator-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	users := &fakeUsers{users: map[string]*domain.User{
		"operator": {
			ID:           "u-1",
			Username:     "operator",
			PasswordHash: string(hash),
			Scopes:       map[string]bool{"audit.read": true},
		},
	}}

	authSvc := service.NewAuthService(users, key, &key.PublicKey, time.Hour)

	requests := &fakeRequests{
		requests: map[string]*domain.Request{
			"req-1": {
				ID:     "req-1",
				Status: domain.StatusActionCompleted,
				Traces: []domain.TraceEntry{
					{Timestamp: time.Now().UTC(), Stage: "classify", Action: "classification_details"},
				},
			},
		},
		summaries: []domain.RequestSummary{
			{ID: "req-1", Status: domain.StatusActionCompleted},
		},
		stats: &domain.DashboardStats{
			TotalRequests: 1,
			ByStatus:      map[string]int{"action_completed": 1},
			ByPriority:    map[string]int{"MEDIUM": 1},
			ByAction:      map[string]int{"LOG_ONLY": 1},
		},
	}

	srv := NewConsoleServer(
		zap.NewNop(),
		authSvc,
		handler.NewAuthHandler(authSvc),
		handler.NewRequestsHandler(service.NewRequestService(ledgerAdapter{requests}, catalogAdapter{requests})),
		handler.NewDashboardHandler(requests),
	)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, requests
}

// Адаптеры под интерфейсы сервиса: fakeRequests уже умеет все операции.
type ledgerAdapter struct{ f *fakeRequests }

func (a ledgerAdapter) Get(ctx context.Context, id string) (*domain.Request, error) {
	return a.f.GetRequest(ctx, id)
}

type catalogAdapter struct{ f *fakeRequests }

func (a catalogAdapter) GetSummaries(ctx context.Context, limit int) ([]domain.RequestSummary, error) {
	return a.f.ListRequests(ctx, limit)
}

func (a catalogAdapter) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	return a.f.GetStats(ctx)
}

func login(t *testing.T, baseURL, username, password string) (string, int) {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	resp, err := http.Post(baseURL+"/auth/token", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode
	}
	var token domain.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&token))
	return token.AccessToken, resp.StatusCode
}

func authedGet(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestLogin(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	t.Run("valid credentials issue token", func(t *testing.T) {
		token, status := login(t, ts.URL, "operator", "operator-pass")
		assert.Equal(t, http.StatusOK, status)
		assert.NotEmpty(t, token)
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		_, status := login(t, ts.URL, "operator", "wrong")
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("unknown user rejected", func(t *testing.T) {
		_, status := login(t, ts.URL, "ghost", "whatever")
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	paths := []string{"/v1/requests", "/v1/requests/req-1", "/api/v1/dashboard/stats"}
	for _, path := range paths {
		resp := authedGet(t, ts.URL+path, "")
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)

		resp = authedGet(t, ts.URL+path, "not-a-jwt")
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestRequestQueries(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)
	token, _ := login(t, ts.URL, "operator", "operator-pass")

	t.Run("list requests", func(t *testing.T) {
		resp := authedGet(t, ts.URL+"/v1/requests", token)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var summaries []domain.RequestSummary
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&summaries))
		require.Len(t, summaries, 1)
		assert.Equal(t, "req-1", summaries[0].ID)
	})

	t.Run("get request with traces", func(t *testing.T) {
		resp := authedGet(t, ts.URL+"/v1/requests/req-1", token)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var req domain.Request
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&req))
		assert.Equal(t, "req-1", req.ID)
		assert.Len(t, req.Traces, 1)
	})

	t.Run("unknown request returns 404", func(t *testing.T) {
		resp := authedGet(t, ts.URL+"/v1/requests/missing", token)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("dashboard stats", func(t *testing.T) {
		resp := authedGet(t, ts.URL+"/api/v1/dashboard/stats", token)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var stats domain.DashboardStats
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
		assert.Equal(t, 1, stats.TotalRequests)
	})
}

func TestForeignKeyTokenRejected(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	// Токен, подписанный чужим ключом, не проходит проверку RS256
	foreignKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("pass"), bcrypt.MinCost)
	require.NoError(t, err)

	users := &fakeUsers{users: map[string]*domain.User{
		"op": {ID: "u-2", Username: "op", PasswordHash: string(hash)},
	}}
	foreignSvc := service.NewAuthService(users, foreignKey, &foreignKey.PublicKey, time.Hour)
	token, err := foreignSvc.GenerateToken(context.Background(), "op", "pass")
	require.NoError(t, err)

	resp := authedGet(t, ts.URL+"/v1/requests", token.AccessToken)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
