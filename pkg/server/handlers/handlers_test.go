// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/uitsmijter/uitsmijter/pkg/codestore"
	"github.com/uitsmijter/uitsmijter/pkg/config"
	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/events"
	"github.com/uitsmijter/uitsmijter/pkg/oauth"
	"github.com/uitsmijter/uitsmijter/pkg/script"
	"github.com/uitsmijter/uitsmijter/pkg/server/middleware"
	"github.com/uitsmijter/uitsmijter/pkg/session"
	"github.com/uitsmijter/uitsmijter/pkg/signer"
	"github.com/uitsmijter/uitsmijter/pkg/templates"
)

var testClientID = uuid.MustParse("6a432bd1-4e35-4d55-9f23-9c86deca25f2")

const testLoginProvider = `
UserLoginProvider = {}
UserLoginProvider.__index = UserLoginProvider

function UserLoginProvider.new(args)
    local self = setmetatable({}, UserLoginProvider)
    self.canLogin = args.password == "secret123"
    self.userProfile = { name = "Frodo Baggins" }
    self.role = "user"
    commit(self.canLogin)
    return self
end
`

type testEnv struct {
	handlers *Handlers
	settings *config.Settings
	store    *entities.Store
	codes    codestore.Store
	signer   *signer.Signer
	sessions *session.Manager
	recorder *events.Recorder
	resolver *middleware.Resolver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	settings := &config.Settings{
		Environment:       config.ModeProduction,
		Secure:            true,
		DefaultHost:       "localhost",
		CookieName:        config.DefaultCookieName,
		InterceptorHeader: config.DefaultInterceptorFlag,
		TokenExpiration:   time.Hour,
		AuthCodeTTL:       time.Minute,
		RefreshTTL:        24 * time.Hour,
		LoginSessionTTL:   2 * time.Minute,
	}

	store := entities.NewStore()
	tenant := &entities.Tenant{
		Name: "shire",
		Ref:  entities.FileRef{Path: "/tenants/shire.yaml"},
		Config: entities.TenantSpec{
			Hosts: []string{"example.com", "*.apps.example.com"},
			Interceptor: &entities.TenantInterceptor{
				Enabled: true,
				Domain:  "login.example.com",
				Cookie:  ".example.com",
			},
			ProviderScripts: []string{testLoginProvider},
			Informations: &entities.TenantInformations{
				ImprintURL: "https://example.com/imprint",
				PrivacyURL: "https://example.com/privacy",
			},
		},
	}
	require.NoError(t, store.UpsertTenant(tenant))
	require.NoError(t, store.UpsertClient(testClient(t, func(*entities.ClientSpec) {})))

	codes := codestore.NewMemoryStore()
	t.Cleanup(func() { _ = codes.Close() })

	sign := signer.New("test-secret")
	sessions := session.NewManager(settings.CookieName, settings.Secure)
	recorder := events.NewRecorder()

	env := &testEnv{
		handlers: New(settings, store, codes, sign, script.NewHost(), sessions,
			templates.NewLoader(t.TempDir()), recorder),
		settings: settings,
		store:    store,
		codes:    codes,
		signer:   sign,
		sessions: sessions,
		recorder: recorder,
		resolver: middleware.NewResolver(settings, store, sign, sessions),
	}
	return env
}

// testClient builds the default client document and applies spec
// mutations before compiling.
func testClient(t *testing.T, mutate func(*entities.ClientSpec)) *entities.Client {
	t.Helper()

	spec := entities.ClientSpec{
		TenantName:   "shire",
		RedirectURLs: []string{`https://app\.example\.com/.*`},
		Scopes:       []string{"read", "write"},
	}
	mutate(&spec)

	client, err := entities.NewClient(testClientID, "app",
		entities.FileRef{Path: "/clients/app.yaml"}, spec)
	require.NoError(t, err)
	return client
}

// do runs a request through the resolver middleware into the handler
// and returns the recorded response.
func (e *testEnv) do(handler http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.resolver.Handler(handler).ServeHTTP(rec, r)
	return rec
}

// sessionToken signs a browser-session token for the given tenant.
func (e *testEnv) sessionToken(t *testing.T, tenant string, ttl time.Duration) string {
	t.Helper()

	now := time.Now()
	token, err := e.signer.Sign(&oauth.TokenPayload{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "frodo@example.com",
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Tenant: tenant,
		User:   "frodo@example.com",
	}, signer.AlgHS256)
	require.NoError(t, err)
	return token
}

func (e *testEnv) sessionCookie(t *testing.T, tenant string) *http.Cookie {
	t.Helper()
	return &http.Cookie{
		Name:  e.settings.CookieName,
		Value: e.sessionToken(t, tenant, time.Hour),
	}
}
