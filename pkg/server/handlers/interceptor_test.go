// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uitsmijter/uitsmijter/pkg/entities"
)

func interceptRequest(env *testEnv, mutate func(*http.Request)) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "https://example.com/interceptor", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "web.apps.example.com")
	r.Header.Set(env.settings.InterceptorHeader, "interceptor")
	if mutate != nil {
		mutate(r)
	}
	return env.do(env.handlers.Interceptor, r)
}

func TestInterceptorAdmitsAuthenticatedRequest(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.sessionToken(t, "shire", time.Hour)

	rec := interceptRequest(env, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: env.settings.CookieName, Value: token})
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bearer "+token, rec.Header().Get("Authorization"))
	assert.Equal(t, "frodo@example.com", rec.Header().Get("X-User-Ident"))
}

func TestInterceptorRedirectsAnonymousToLogin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := interceptRequest(env, nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	location := rec.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, "https://login.example.com/login?"),
		"got location %q", location)
	assert.Contains(t, location, "web.apps.example.com", "the original URL rides along")
}

func TestInterceptorRedirectsExpiredSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := interceptRequest(env, func(r *http.Request) {
		r.AddCookie(&http.Cookie{
			Name:  env.settings.CookieName,
			Value: env.sessionToken(t, "shire", -time.Minute),
		})
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Location"))
}

func TestInterceptorDisabledTenant(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tenant := &entities.Tenant{
		Name: "shire",
		Ref:  entities.FileRef{Path: "/tenants/shire.yaml"},
		Config: entities.TenantSpec{
			Hosts: []string{"example.com", "*.apps.example.com"},
		},
	}
	require.NoError(t, env.store.UpsertTenant(tenant))

	rec := interceptRequest(env, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInterceptorUnknownHost(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := interceptRequest(env, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Host", "nobody.test")
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
