// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/uitsmijter/uitsmijter/pkg/codestore"
	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/oauth"
)

// storeCode plants an authorization code the way Authorize would.
func storeCode(t *testing.T, env *testEnv, mutate func(*codestore.AuthSession)) *codestore.AuthSession {
	t.Helper()

	session := &codestore.AuthSession{
		Kind: codestore.KindCode,
		Code: codestore.GenerateCode(),
		Payload: oauth.TokenPayload{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject: "frodo@example.com",
			},
			Tenant: "shire",
			User:   "frodo@example.com",
		},
		Scopes:     []string{"read"},
		Redirect:   "https://app.example.com/callback",
		TTLSeconds: 60,
	}
	if mutate != nil {
		mutate(session)
	}
	require.NoError(t, env.codes.Put(context.Background(), session))
	return session
}

// postToken sends a form-encoded token request.
func postToken(env *testEnv, form url.Values) *httptest.ResponseRecorder {
	form.Set("client_id", testClientID.String())
	r := httptest.NewRequest(http.MethodPost, "https://example.com/token",
		strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return env.do(env.handlers.Token, r)
}

func decodeTokenResponse(t *testing.T, rec *httptest.ResponseRecorder) oauth.TokenResponse {
	t.Helper()
	var resp oauth.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestTokenAuthorizationCodeExchange(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	code := storeCode(t, env, nil)

	rec := postToken(env, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code.Code},
		"redirect_uri": {"https://app.example.com/callback"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeTokenResponse(t, rec)
	assert.Equal(t, oauth.TokenTypeBearer, resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "read", resp.Scope)
	require.NotEmpty(t, resp.RefreshToken)

	payload, err := env.signer.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "frodo@example.com", payload.Subject)
	assert.Equal(t, "shire", payload.Tenant)
}

func TestTokenCodeIsSingleUse(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	code := storeCode(t, env, nil)

	form := url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code.Code},
	}
	rec := postToken(env, form)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postToken(env, form)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_GRANT")
}

func TestTokenUnknownCode(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := postToken(env, url.Values{
		"grant_type": {"authorization_code"},
		"code":       {"does-not-exist"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_GRANT")
}

func TestTokenRedirectMismatch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	code := storeCode(t, env, nil)

	rec := postToken(env, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code.Code},
		"redirect_uri": {"https://app.example.com/other"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "REDIRECT_MISMATCH")
}

func TestTokenPKCES256(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	verifier := oauth2.GenerateVerifier()
	challenge := oauth2.S256ChallengeFromVerifier(verifier)

	code := storeCode(t, env, func(s *codestore.AuthSession) {
		s.PKCEChallenge = challenge
		s.PKCEMethod = oauth.ChallengeMethodS256
	})

	rec := postToken(env, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code.Code},
		"code_verifier": {"wrong-verifier"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_CODE_VERIFIER")

	// The failed exchange consumed the code; plant a fresh one.
	code = storeCode(t, env, func(s *codestore.AuthSession) {
		s.PKCEChallenge = challenge
		s.PKCEMethod = oauth.ChallengeMethodS256
	})

	rec = postToken(env, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code.Code},
		"code_verifier": {verifier},
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestTokenConfidentialClientNeedsSecret(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	require.NoError(t, env.store.UpsertClient(testClient(t, func(spec *entities.ClientSpec) {
		spec.Secret = "app-secret"
	})))
	code := storeCode(t, env, nil)

	rec := postToken(env, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code.Code},
		"client_secret": {"wrong"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "WRONG_CLIENT_SECRET")

	code = storeCode(t, env, nil)
	rec = postToken(env, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code.Code},
		"client_secret": {"app-secret"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenRefreshGrant(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	code := storeCode(t, env, nil)

	rec := postToken(env, url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code.Code},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	first := decodeTokenResponse(t, rec)

	rec = postToken(env, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decodeTokenResponse(t, rec)

	// The refresh token stays valid and is returned unchanged.
	assert.Equal(t, first.RefreshToken, second.RefreshToken)
	payload, err := env.signer.Verify(second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "frodo@example.com", payload.Subject)

	rec = postToken(env, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
	})
	assert.Equal(t, http.StatusOK, rec.Code, "refresh tokens are reusable until expiry")
}

func TestTokenAcceptsJSONBody(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	code := storeCode(t, env, nil)

	body, err := json.Marshal(map[string]string{
		"grant_type": "authorization_code",
		"client_id":  testClientID.String(),
		"code":       code.Code,
	})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "https://example.com/token", strings.NewReader(string(body)))
	r.Header.Set("Content-Type", "application/json")
	rec := env.do(env.handlers.Token, r)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestTokenPasswordGrant(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := postToken(env, url.Values{
		"grant_type": {"password"},
		"username":   {"frodo"},
		"password":   {"secret123"},
		"scope":      {"read admin"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeTokenResponse(t, rec)
	assert.Empty(t, resp.RefreshToken, "the password grant issues no refresh token")
	assert.Equal(t, "read", resp.Scope, "scopes are capped to the client whitelist")

	payload, err := env.signer.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "frodo", payload.Subject)
	assert.Equal(t, "user", payload.Role)
}

func TestTokenPasswordGrantDeclined(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := postToken(env, url.Values{
		"grant_type": {"password"},
		"username":   {"frodo"},
		"password":   {"wrong"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "FORBIDDEN")
}

func TestTokenClientCredentials(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	require.NoError(t, env.store.UpsertClient(testClient(t, func(spec *entities.ClientSpec) {
		spec.Secret = "app-secret"
		spec.GrantTypes = []oauth.GrantType{oauth.GrantTypeClientCredentials}
	})))

	rec := postToken(env, url.Values{
		"grant_type":    {"client_credentials"},
		"client_secret": {"wrong"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postToken(env, url.Values{
		"grant_type":    {"client_credentials"},
		"client_secret": {"app-secret"},
		"scope":         {"read"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeTokenResponse(t, rec)
	payload, err := env.signer.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testClientID.String(), payload.Subject)
	assert.Equal(t, "service", payload.Role)
	assert.Equal(t, "shire", payload.Tenant)
}

func TestTokenUnsupportedGrant(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := postToken(env, url.Values{"grant_type": {"implicit"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNSUPPORTED_GRANT_TYPE")
}

func TestTokenInfo(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	r := httptest.NewRequest(http.MethodGet, "https://example.com/token/info", nil)
	rec := env.do(env.handlers.TokenInfo, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	r = httptest.NewRequest(http.MethodGet, "https://example.com/token/info", nil)
	r.Header.Set("Authorization", "Bearer "+env.sessionToken(t, "shire", time.Hour))
	rec = env.do(env.handlers.TokenInfo, r)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload oauth.TokenPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "frodo@example.com", payload.Subject)
	assert.Equal(t, "shire", payload.Tenant)
}
