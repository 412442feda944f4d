// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uitsmijter/uitsmijter/pkg/entities"
)

func TestCountersIncrement(t *testing.T) {
	t.Parallel()

	r := NewRecorder()

	r.LoginAttempt()
	r.LoginAttempt()
	r.LoginSuccess()
	r.OAuthSuccess()
	r.TokenStored()

	assert.Equal(t, float64(2), testutil.ToFloat64(r.loginAttempts))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.loginSuccess))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.oauthSuccess))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.tokenStored))
	assert.Equal(t, float64(0), testutil.ToFloat64(r.loginFailure))
}

func TestDenialsAndCallback(t *testing.T) {
	t.Parallel()

	type report struct{ tenant, client, reason string }
	var reports []report
	r := NewRecorder(WithStatusCallback(func(tenant, client, reason string) {
		reports = append(reports, report{tenant, client, reason})
	}))

	r.LoginFailure("shire", "client-1", "INVALID_CREDENTIALS")
	r.OAuthFailure("shire", "client-1", "INVALID_GRANT")
	r.InterceptorFailure("shire", "NO_COOKIE")

	assert.Equal(t, int64(2), r.Denials("client-1"))
	assert.Equal(t, int64(0), r.Denials("client-2"))

	require.Len(t, reports, 3)
	assert.Equal(t, "shire", reports[0].tenant)
	assert.Equal(t, "INVALID_CREDENTIALS", reports[0].reason)
	assert.Empty(t, reports[2].client, "interceptor failures carry no client")
}

func TestGaugesTrackEntityStore(t *testing.T) {
	t.Parallel()

	store := entities.NewStore()
	r := NewRecorder()
	r.Attach(store)

	assert.Equal(t, float64(0), testutil.ToFloat64(r.tenantsCount))

	tenant := &entities.Tenant{
		Name: "shire",
		Ref:  entities.FileRef{Path: "/tenants/shire.yaml"},
		Config: entities.TenantSpec{
			Hosts: []string{"example.com"},
		},
	}
	require.NoError(t, store.UpsertTenant(tenant))

	assert.Equal(t, float64(1), testutil.ToFloat64(r.tenantsCount))

	require.True(t, store.RemoveTenant("shire"))
	assert.Equal(t, float64(0), testutil.ToFloat64(r.tenantsCount))
}

func TestMetricsHandlerExposesPrefix(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.AuthorizeAttempt()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "uitsmijter_authorize_attempts 1")
}
