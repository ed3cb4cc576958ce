package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/tenantkit/internal/authorization"
	"github.com/smallbiznis/tenantkit/internal/clock"
	"github.com/smallbiznis/tenantkit/internal/config"
	"github.com/smallbiznis/tenantkit/internal/events"
	"github.com/smallbiznis/tenantkit/internal/identity"
	invitationrepository "github.com/smallbiznis/tenantkit/internal/invitation/repository"
	invitationservice "github.com/smallbiznis/tenantkit/internal/invitation/service"
	"github.com/smallbiznis/tenantkit/internal/migration"
	"github.com/smallbiznis/tenantkit/internal/observability"
	obsmetrics "github.com/smallbiznis/tenantkit/internal/observability/metrics"
	orgrepository "github.com/smallbiznis/tenantkit/internal/organization/repository"
	orgservice "github.com/smallbiznis/tenantkit/internal/organization/service"
	"github.com/smallbiznis/tenantkit/internal/providers/email"
	userrepository "github.com/smallbiznis/tenantkit/internal/user/repository"
	userservice "github.com/smallbiznis/tenantkit/internal/user/service"
	"github.com/smallbiznis/tenantkit/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret-with-enough-entropy"

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type testServer struct {
	t     *testing.T
	srv   *Server
	conn  *gorm.DB
	clock *clock.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(testNow)
	log := zaptest.NewLogger(t)

	cfg := config.Config{
		AppURL: "https://app.tenantkit.test",
		Auth: config.AuthConfig{
			JWTSecret:   testJWTSecret,
			JWTAudience: "authenticated",
			CookieName:  "access_token",
		},
	}

	verifier, err := identity.NewVerifier(cfg, clk, log)
	require.NoError(t, err)

	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})

	userRepo := userrepository.NewRepository(conn)
	orgRepo := orgrepository.NewRepository(conn)
	publisher := events.NewOutboxPublisher(conn, node, clk)
	noopMetrics := obsmetrics.NewNoop()

	orgSvc := orgservice.NewService(orgservice.Params{
		DB:        conn,
		Repo:      orgRepo,
		UserRepo:  userRepo,
		GenID:     node,
		Clock:     clk,
		Publisher: publisher,
		Metrics:   noopMetrics,
		Log:       log,
	})
	invitationSvc := invitationservice.NewService(invitationservice.Params{
		DB:        conn,
		Authz:     authz,
		Repo:      invitationrepository.NewRepository(conn),
		UserRepo:  userRepo,
		OrgRepo:   orgRepo,
		GenID:     node,
		Clock:     clk,
		Config:    cfg,
		Policy:    config.NewStaticInvitationPolicy(config.DefaultInvitationPolicy()),
		Email:     &email.NoOpProvider{},
		Publisher: publisher,
		Metrics:   noopMetrics,
		Log:       log,
	})

	httpMetrics, err := obsmetrics.NewHTTPMetricsWithRegisterer(prometheus.NewRegistry())
	require.NoError(t, err)

	srv := NewServer(ServerParams{
		Gin:             NewEngine(cfg, observability.Config{}, httpMetrics),
		Cfg:             cfg,
		Log:             log,
		Verifier:        verifier,
		Authz:           authz,
		UserSvc:         userservice.NewService(userRepo, authz, log),
		OrganizationSvc: orgSvc,
		OrgBootstrap:    orgSvc,
		InvitationSvc:   invitationSvc,
		ObsMetrics:      noopMetrics,
	})

	return &testServer{t: t, srv: srv, conn: conn, clock: clk}
}

func (ts *testServer) token(sub, email, name string) string {
	ts.t.Helper()
	claims := identity.Claims{
		Email:        email,
		UserMetadata: identity.UserMetadata{FullName: name},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(testNow),
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(ts.t, err)
	return signed
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func (ts *testServer) do(method, path string, body any, opts ...requestOption) (*httptest.ResponseRecorder, map[string]any) {
	ts.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	resp := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(resp, req)

	var decoded map[string]any
	if resp.Body.Len() > 0 {
		require.NoError(ts.t, json.Unmarshal(resp.Body.Bytes(), &decoded), resp.Body.String())
	}
	return resp, decoded
}

func (ts *testServer) bootstrapOrg(token, name, domain string) (orgID string) {
	ts.t.Helper()
	resp, body := ts.do(http.MethodPost, "/api/organizations", gin.H{
		"organization_name": name,
		"domain":            domain,
	}, withBearer(token))
	require.Equal(ts.t, http.StatusOK, resp.Code, resp.Body.String())
	org := body["organization"].(map[string]any)
	return org["id"].(string)
}

func (ts *testServer) invite(token string, body gin.H, opts ...requestOption) (*httptest.ResponseRecorder, map[string]any) {
	ts.t.Helper()
	return ts.do(http.MethodPost, "/api/auth/invite", body, append([]requestOption{withBearer(token)}, opts...)...)
}

func tokenFromInviteURL(t *testing.T, inviteURL string) string {
	t.Helper()
	_, token, ok := strings.Cut(inviteURL, "token=")
	require.True(t, ok, inviteURL)
	return token
}

func errorType(body map[string]any) string {
	errBody, ok := body["error"].(map[string]any)
	if !ok {
		return ""
	}
	value, _ := errBody["type"].(string)
	return value
}

func errorMessage(body map[string]any) string {
	errBody, ok := body["error"].(map[string]any)
	if !ok {
		return ""
	}
	value, _ := errBody["message"].(string)
	return value
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))
}

func TestInvitationLifecycle(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.token("auth-admin", "owner@acme.test", "Olive Owner")
	guestToken := ts.token("auth-guest", "Guest@Acme.test", "Gus Guest")

	orgID := ts.bootstrapOrg(adminToken, "Acme", "acme")

	resp, body := ts.invite(adminToken, gin.H{
		"organization_id": orgID,
		"email":           "guest@acme.test",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, true, body["success"])
	inviteURL := body["invite_url"].(string)
	assert.True(t, strings.HasPrefix(inviteURL, "https://app.tenantkit.test/accept-invite?token="))
	invitation := body["invitation"].(map[string]any)
	assert.Equal(t, "USER", invitation["role"])
	assert.Equal(t, "guest@acme.test", invitation["email"])

	token := tokenFromInviteURL(t, inviteURL)

	resp, body = ts.do(http.MethodGet, "/api/auth/invite/validate?token="+token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, body["valid"])
	validated := body["invitation"].(map[string]any)
	assert.Equal(t, orgID, validated["organization_id"])

	resp, body = ts.do(http.MethodPost, "/api/auth/accept-invite", gin.H{"token": token}, withBearer(guestToken))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	user := body["user"].(map[string]any)
	assert.Equal(t, "guest@acme.test", user["email"])
	assert.Equal(t, "USER", user["role"])
	assert.Equal(t, "Gus Guest", user["name"])
	assert.Equal(t, orgID, user["organization_id"])

	resp, body = ts.do(http.MethodGet, "/api/auth/me", nil, withBearer(guestToken))
	require.Equal(t, http.StatusOK, resp.Code)
	me := body["user"].(map[string]any)
	assert.Equal(t, "guest@acme.test", me["email"])
	assert.Equal(t, "Acme", me["organization"].(map[string]any)["name"])

	resp, body = ts.do(http.MethodGet, "/api/auth/invite/validate?token="+token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "already_used", body["error"])

	resp, body = ts.do(http.MethodPost, "/api/auth/accept-invite", gin.H{"token": token}, withBearer(guestToken))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "already_used", errorType(body))

	resp, body = ts.do(http.MethodGet, "/api/organizations/"+orgID+"/users", nil, withBearer(adminToken))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, body["users"], 2)

	var stored int64
	require.NoError(t, ts.conn.Table("outbox_events").Where("payload LIKE ?", "%"+token+"%").Count(&stored).Error)
	assert.Zero(t, stored)
}

func TestIssueInvitationRequiresIdentity(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(http.MethodPost, "/api/auth/invite", gin.H{"email": "a@b.test"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "unauthenticated", errorType(body))

	resp, body = ts.do(http.MethodPost, "/api/auth/invite", gin.H{"email": "a@b.test"}, withBearer("not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "unauthenticated", errorType(body))
}

func TestNotOnboardedIdentityIsUnauthenticated(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(http.MethodGet, "/api/auth/me", nil, withBearer(ts.token("auth-new", "new@acme.test", "")))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "unauthenticated", errorType(body))
}

func TestAccessTokenCookie(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.token("auth-admin", "owner@acme.test", "Olive Owner")
	ts.bootstrapOrg(adminToken, "Acme", "")

	resp, body := ts.do(http.MethodGet, "/api/auth/me", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "access_token", Value: adminToken})
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ORG_ADMIN", body["user"].(map[string]any)["role"])
}

func TestIssueInvitationAccessDenied(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.token("auth-admin", "owner@acme.test", "Olive Owner")
	memberToken := ts.token("auth-member", "member@acme.test", "Mia Member")
	otherToken := ts.token("auth-other", "owner@globex.test", "Otto Other")

	acmeID := ts.bootstrapOrg(adminToken, "Acme", "acme")
	globexID := ts.bootstrapOrg(otherToken, "Globex", "globex")

	resp, body := ts.invite(adminToken, gin.H{"organization_id": acmeID, "email": "member@acme.test"})
	require.Equal(t, http.StatusOK, resp.Code)
	token := tokenFromInviteURL(t, body["invite_url"].(string))
	resp, _ = ts.do(http.MethodPost, "/api/auth/accept-invite", gin.H{"token": token}, withBearer(memberToken))
	require.Equal(t, http.StatusOK, resp.Code)

	resp, body = ts.invite(memberToken, gin.H{"organization_id": acmeID, "email": "someone@acme.test"})
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "access_denied", errorType(body))
	assert.Equal(t, "ORG_ADMIN role required", errorMessage(body))

	resp, body = ts.invite(adminToken, gin.H{"organization_id": globexID, "email": "someone@globex.test"})
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "access_denied", errorType(body))
	assert.Equal(t, "user does not belong to this organization", errorMessage(body))

	resp, body = ts.do(http.MethodGet, "/api/organizations/"+globexID+"/users", nil, withBearer(adminToken))
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "access_denied", errorType(body))
}

func TestGetOrganization(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.token("auth-admin", "owner@acme.test", "Olive Owner")
	otherToken := ts.token("auth-other", "owner@globex.test", "Otto Other")

	acmeID := ts.bootstrapOrg(adminToken, "Acme", "acme")
	globexID := ts.bootstrapOrg(otherToken, "Globex", "globex")

	resp, body := ts.do(http.MethodGet, "/api/organizations/"+acmeID, nil, withBearer(adminToken))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	org := body["organization"].(map[string]any)
	assert.Equal(t, acmeID, org["id"])
	assert.Equal(t, "Acme", org["name"])

	resp, body = ts.do(http.MethodGet, "/api/organizations/"+globexID, nil, withBearer(adminToken))
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "access_denied", errorType(body))

	resp, body = ts.do(http.MethodGet, "/api/organizations/"+snowflake.ID(42).String(), nil, withBearer(adminToken))
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "access_denied", errorType(body))

	resp, body = ts.do(http.MethodGet, "/api/organizations/abc", nil, withBearer(adminToken))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "validation_error", errorType(body))
}

func TestGetOrganizationRemovedIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.token("auth-admin", "owner@acme.test", "Olive Owner")
	acmeID := ts.bootstrapOrg(adminToken, "Acme", "acme")

	// The membership outlives the organization row.
	require.NoError(t, ts.conn.Exec("PRAGMA foreign_keys = OFF").Error)
	id, err := snowflake.ParseString(acmeID)
	require.NoError(t, err)
	require.NoError(t, ts.conn.Exec("DELETE FROM organizations WHERE id = ?", int64(id)).Error)

	resp, body := ts.do(http.MethodGet, "/api/organizations/"+acmeID, nil, withBearer(adminToken))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not_found", errorType(body))
}

func TestIssueInvitationConflicts(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.token("auth-admin", "owner@acme.test", "Olive Owner")
	orgID := ts.bootstrapOrg(adminToken, "Acme", "acme")

	resp, _ := ts.invite(adminToken, gin.H{"organization_id": orgID, "email": "guest@acme.test", "role": "org_admin"})
	require.Equal(t, http.StatusOK, resp.Code)

	resp, body := ts.invite(adminToken, gin.H{"organization_id": orgID, "email": "GUEST@acme.test"})
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "duplicate_invitation", errorType(body))

	resp, body = ts.invite(adminToken, gin.H{"organization_id": orgID, "email": "owner@acme.test"})
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "user_exists", errorType(body))
}

func TestIssueInvitationValidation(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.token("auth-admin", "owner@acme.test", "Olive Owner")
	orgID := ts.bootstrapOrg(adminToken, "Acme", "")

	resp, body := ts.invite(adminToken, gin.H{"organization_id": orgID, "email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "validation_error", errorType(body))

	resp, body = ts.invite(adminToken, gin.H{"organization_id": orgID, "email": "x@acme.test", "role": "SUPERUSER"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "validation_error", errorType(body))

	resp, body = ts.invite(adminToken, gin.H{"organization_id": "abc", "email": "x@acme.test"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "validation_error", errorType(body))

	resp, body = ts.invite(adminToken, gin.H{"email": "x@acme.test"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "validation_error", errorType(body))
}

func TestIssueInvitationFallsBackToOrganizationHint(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.token("auth-admin", "owner@acme.test", "Olive Owner")
	orgID := ts.bootstrapOrg(adminToken, "Acme", "acme")

	resp, body := ts.invite(adminToken, gin.H{"email": "guest@acme.test"}, withHeader(HeaderOrganizationSubdomain, "ACME"))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	token := tokenFromInviteURL(t, body["invite_url"].(string))
	_, body = ts.do(http.MethodGet, "/api/auth/invite/validate?token="+token, nil)
	assert.Equal(t, orgID, body["invitation"].(map[string]any)["organization_id"])

	resp, body = ts.invite(adminToken, gin.H{"email": "other@acme.test"}, withHeader(HeaderOrganizationSubdomain, "unknown"))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "validation_error", errorType(body))
}

func TestValidateInvitationRejections(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.token("auth-admin", "owner@acme.test", "Olive Owner")
	orgID := ts.bootstrapOrg(adminToken, "Acme", "")

	resp, body := ts.do(http.MethodGet, "/api/auth/invite/validate", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "invalid_token", body["error"])
	assert.NotContains(t, body, "invitation")

	resp, body = ts.do(http.MethodGet, "/api/auth/invite/validate?token=deadbeef", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "invalid_token", body["error"])

	_, body = ts.invite(adminToken, gin.H{"organization_id": orgID, "email": "late@acme.test"})
	token := tokenFromInviteURL(t, body["invite_url"].(string))

	ts.clock.Advance(7 * 24 * time.Hour)
	resp, body = ts.do(http.MethodGet, "/api/auth/invite/validate?token="+token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "expired", body["error"])
}

func TestAcceptInvitationRejections(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.token("auth-admin", "owner@acme.test", "Olive Owner")
	orgID := ts.bootstrapOrg(adminToken, "Acme", "")

	_, body := ts.invite(adminToken, gin.H{"organization_id": orgID, "email": "guest@acme.test"})
	token := tokenFromInviteURL(t, body["invite_url"].(string))

	resp, body := ts.do(http.MethodPost, "/api/auth/accept-invite", gin.H{"token": token})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "unauthenticated", errorType(body))

	intruder := ts.token("auth-intruder", "intruder@evil.test", "")
	resp, body = ts.do(http.MethodPost, "/api/auth/accept-invite", gin.H{"token": token}, withBearer(intruder))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "email_mismatch", errorType(body))

	resp, body = ts.do(http.MethodPost, "/api/auth/accept-invite", gin.H{"token": token}, withBearer(adminToken))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "already_onboarded", errorType(body))

	resp, body = ts.do(http.MethodPost, "/api/auth/accept-invite", gin.H{"token": ""}, withBearer(intruder))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "validation_error", errorType(body))

	resp, body = ts.do(http.MethodPost, "/api/auth/accept-invite", gin.H{"token": "unknown"}, withBearer(intruder))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_token", errorType(body))

	_, body = ts.do(http.MethodGet, "/api/auth/invite/validate?token="+token, nil)
	assert.Equal(t, true, body["valid"])
}

func TestCreateOrganization(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.token("auth-admin", "owner@acme.test", "Olive Owner")

	resp, body := ts.do(http.MethodPost, "/api/organizations", gin.H{"organization_name": "  "}, withBearer(adminToken))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "validation_error", errorType(body))

	resp, body = ts.do(http.MethodPost, "/api/organizations", gin.H{"organization_name": "Acme Corp", "domain": "acme"}, withBearer(adminToken))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "acme-corp", body["organization"].(map[string]any)["slug"])
	assert.Equal(t, "ORG_ADMIN", body["user"].(map[string]any)["role"])

	resp, body = ts.do(http.MethodPost, "/api/organizations", gin.H{"organization_name": "Second"}, withBearer(adminToken))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "already_onboarded", errorType(body))
}

func TestOrganizationHintIgnoresLookupErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &Server{organizationSvc: nil}

	router := gin.New()
	router.Use(srv.OrganizationHint())
	router.GET("/hint", func(c *gin.Context) {
		_, ok := organizationHintFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"resolved": ok})
	})

	req := httptest.NewRequest(http.MethodGet, "/hint", nil)
	req.Header.Set(HeaderOrganizationSubdomain, "acme")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"resolved":false}`, resp.Body.String())
}

func TestInviteTokenRateLimitDisabledAllows(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &Server{}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.GET("/limited", srv.InviteTokenRateLimit(rateLimitEndpointValidate), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for i := 0; i < 20; i++ {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/limited", nil))
		require.Equal(t, http.StatusNoContent, resp.Code)
	}
}

func TestAccessTokenFromRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &Server{cfg: config.Config{Auth: config.AuthConfig{CookieName: "sb_token"}}}

	cases := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{name: "bearer", header: "Bearer abc", want: "abc"},
		{name: "bearer case", header: "bearer  abc ", want: "abc"},
		{name: "basic ignored", header: "Basic abc", cookie: "fromcookie", want: ""},
		{name: "cookie", cookie: "fromcookie", want: "fromcookie"},
		{name: "none", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "sb_token", Value: tc.cookie})
			}
			c.Request = req.WithContext(context.Background())
			assert.Equal(t, tc.want, srv.accessTokenFromRequest(c))
		})
	}
}
