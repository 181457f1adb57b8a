package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/tokenbridge/internal/auth"
	"github.com/hitoshi/tokenbridge/internal/database"
	"github.com/hitoshi/tokenbridge/internal/metrics"
	"github.com/hitoshi/tokenbridge/internal/model"
	"github.com/hitoshi/tokenbridge/internal/repository"
	"github.com/hitoshi/tokenbridge/internal/security"
	"github.com/hitoshi/tokenbridge/internal/session"
	"github.com/hitoshi/tokenbridge/internal/user"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier map[string]*model.VerifiedIdentity

func (s stubVerifier) Verify(ctx context.Context, raw string) (*model.VerifiedIdentity, error) {
	if ident, ok := s[raw]; ok {
		return ident, nil
	}
	return nil, fmt.Errorf("%w: unknown token", model.ErrInvalidIdentityToken)
}

type testServer struct {
	handler http.Handler
	repo    repository.UserRepository
}

// newTestServer はインメモリSQLiteと実際の認証スタックでルーターを構成する。
// issuerClockがnilでなければ、発行時刻をその時計で決める。
func newTestServer(t *testing.T, verifier stubVerifier, issuerClock session.Clock) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.EnsureSQLiteSchema(ctx, db))

	repo := repository.NewSQLiteUserRepo(db)
	key := []byte("router-test-secret")

	var issuerOpts []session.IssuerOption
	if issuerClock != nil {
		issuerOpts = append(issuerOpts, session.WithClock(issuerClock))
	}
	issuer, err := session.NewIssuer(key, session.AlgorithmHS256, issuerOpts...)
	require.NoError(t, err)
	validator, err := session.NewValidator(key, session.AlgorithmHS256)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	svc := auth.NewService(
		verifier,
		user.NewProvisioner(repo, security.NewNameSanitizer(), collector),
		issuer,
		validator,
		session.NewResolver(validator, repo),
		collector,
		auth.ServiceConfig{SessionTTL: time.Hour},
	)

	return &testServer{
		handler: NewRouter(&RouterDeps{
			CORSAllowedOrigin: "*",
			Metrics:           collector,
			MetricsGatherer:   reg,
			AuthService:       svc,
			HealthChecker:     db,
		}),
		repo: repo,
	}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) exchange(t *testing.T, idToken string) string {
	t.Helper()
	rec := s.do(http.MethodPost, "/token", fmt.Sprintf(`{"id_token":%q}`, idToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body tokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "bearer", body.TokenType)
	require.NotEmpty(t, body.AccessToken)
	return body.AccessToken
}

func TestRouter_ExchangeValidateResolve(t *testing.T) {
	srv := newTestServer(t, stubVerifier{
		"T": {Subject: "u1", Email: "a@x.io", EmailVerified: true, Name: "Alice"},
	}, nil)

	token := srv.exchange(t, "T")

	rec := srv.do(http.MethodGet, "/validate?access_token="+url.QueryEscape(token), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(http.MethodGet, "/user?access_token="+url.QueryEscape(token), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"u1","role":"MEMBER","email":"a@x.io","name":"Alice"}`, rec.Body.String())

	rec = srv.do(http.MethodGet, "/user?firebase_id=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"u1","role":"MEMBER","email":"a@x.io","name":"Alice"}`, rec.Body.String())

	// 2回目の交換では新しいユーザーは作られない
	srv.exchange(t, "T")
	u, err := srv.repo.FindByExternalID(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Alice", u.Name)
}

func TestRouter_EmailNotVerified(t *testing.T) {
	srv := newTestServer(t, stubVerifier{
		"T": {Subject: "u2", Email: "b@x.io", EmailVerified: false, Name: "Bob"},
	}, nil)

	rec := srv.do(http.MethodPost, "/token", `{"id_token":"T"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.JSONEq(t, `{"detail":"Must verify email"}`, rec.Body.String())

	u, err := srv.repo.FindByExternalID(context.Background(), "u2")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestRouter_InvalidIDToken(t *testing.T) {
	srv := newTestServer(t, stubVerifier{}, nil)

	rec := srv.do(http.MethodPost, "/token", `{"id_token":"garbage"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"Invalid id token"}`, rec.Body.String())
}

func TestRouter_ExpiredSessionToken(t *testing.T) {
	past := func() time.Time { return time.Now().Add(-2 * time.Hour) }
	srv := newTestServer(t, stubVerifier{
		"T": {Subject: "u1", Email: "a@x.io", EmailVerified: true, Name: "Alice"},
	}, past)

	token := srv.exchange(t, "T")

	rec := srv.do(http.MethodGet, "/validate?access_token="+url.QueryEscape(token), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"Could not validate credentials"}`, rec.Body.String())

	rec = srv.do(http.MethodGet, "/user?access_token="+url.QueryEscape(token), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"detail":"Expired token"}`, rec.Body.String())

	// 外部IDが指定されていればトークンの期限は問わない
	rec = srv.do(http.MethodGet, "/user?firebase_id=u1&access_token="+url.QueryEscape(token), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_UserLookupErrors(t *testing.T) {
	srv := newTestServer(t, stubVerifier{}, nil)

	rec := srv.do(http.MethodGet, "/user", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"Identifier not provided"}`, rec.Body.String())

	rec = srv.do(http.MethodGet, "/user?access_token=not-a-jwt", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"detail":"Invalid token"}`, rec.Body.String())

	rec = srv.do(http.MethodGet, "/user?firebase_id=nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"Invalid user id"}`, rec.Body.String())

	rec = srv.do(http.MethodGet, "/user?firebase_id=", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"Invalid user id"}`, rec.Body.String())
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, stubVerifier{}, nil)

	rec := srv.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	srv.do(http.MethodPost, "/token", `{"id_token":"garbage"}`)

	rec = srv.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tokenbridge_token_exchange_total")
}

func TestRouter_MiddlewareHeaders(t *testing.T) {
	srv := newTestServer(t, stubVerifier{}, nil)

	rec := srv.do(http.MethodGet, "/health", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_UnknownRoute(t *testing.T) {
	srv := newTestServer(t, stubVerifier{}, nil)

	rec := srv.do(http.MethodGet, "/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(http.MethodGet, "/token", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
