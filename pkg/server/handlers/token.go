// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"mime"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/uitsmijter/uitsmijter/pkg/codestore"
	"github.com/uitsmijter/uitsmijter/pkg/logger"
	"github.com/uitsmijter/uitsmijter/pkg/oauth"
	"github.com/uitsmijter/uitsmijter/pkg/script"
	"github.com/uitsmijter/uitsmijter/pkg/server/requestcontext"
	"github.com/uitsmijter/uitsmijter/pkg/signer"
)

// tokenRequest is the unified token-endpoint request body, accepted as
// form data or JSON.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	CodeVerifier string `json:"code_verifier"`
	RefreshToken string `json:"refresh_token"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	ClientSecret string `json:"client_secret"`
	Scope        string `json:"scope"`
}

// parseTokenRequest decodes the body regardless of encoding.
func parseTokenRequest(r *http.Request) (*tokenRequest, error) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "application/json" {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return &tokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Username:     r.PostFormValue("username"),
		Password:     r.PostFormValue("password"),
		ClientSecret: r.PostFormValue("client_secret"),
		Scope:        r.PostFormValue("scope"),
	}, nil
}

// Token demultiplexes the grant exchange on grant_type.
func (h *Handlers) Token(w http.ResponseWriter, r *http.Request) {
	h.events.AuthorizeAttempt()

	req, err := parseTokenRequest(r)
	if err != nil {
		h.oauthFail(w, r, oauth.BadRequest(oauth.ErrorBadRequest).WithCause(err))
		return
	}

	switch oauth.GrantType(req.GrantType) {
	case oauth.GrantTypeAuthorizationCode:
		h.tokenAuthorizationCode(w, r, req)
	case oauth.GrantTypeRefreshToken:
		h.tokenRefresh(w, r, req)
	case oauth.GrantTypePassword:
		h.tokenPassword(w, r, req)
	case oauth.GrantTypeClientCredentials:
		h.tokenClientCredentials(w, r, req)
	default:
		h.oauthFail(w, r, oauth.BadRequest(oauth.ErrorUnsupportedGrant))
	}
}

// oauthFail records the failure before rendering it.
func (h *Handlers) oauthFail(w http.ResponseWriter, r *http.Request, err *oauth.Error) {
	info := requestcontext.FromRequest(r)
	tenant, client := "", ""
	if info.Tenant != nil {
		tenant = info.Tenant.Name
	}
	if info.Client != nil {
		client = info.Client.ID.String()
	}
	h.events.OAuthFailure(tenant, client, err.Code)
	h.fail(w, r, err)
}

// tokenAuthorizationCode trades a single-use code for tokens.
func (h *Handlers) tokenAuthorizationCode(w http.ResponseWriter, r *http.Request, req *tokenRequest) {
	info := requestcontext.FromRequest(r)
	client := info.Client
	if client == nil {
		h.oauthFail(w, r, oauth.BadRequest(oauth.ErrorNoClient))
		return
	}
	if !client.AllowsGrant(oauth.GrantTypeAuthorizationCode) {
		h.oauthFail(w, r, oauth.Forbidden(oauth.ErrorForbidden))
		return
	}

	session, err := h.codes.Get(r.Context(), codestore.KindCode, req.Code, true)
	if err != nil {
		h.oauthFail(w, r, oauth.Dependency(err))
		return
	}
	if session == nil {
		h.oauthFail(w, r, oauth.BadRequest(oauth.ErrorInvalidGrant))
		return
	}

	if req.RedirectURI != "" && req.RedirectURI != session.Redirect {
		h.oauthFail(w, r, oauth.BadRequest(oauth.ErrorRedirectMismatch))
		return
	}

	// PKCE binding beats the client secret; a public client proves
	// possession of the verifier instead.
	if session.PKCEMethod != oauth.ChallengeMethodNone && session.PKCEChallenge != "" {
		if req.CodeVerifier == "" ||
			!session.PKCEMethod.VerifyChallenge(session.PKCEChallenge, req.CodeVerifier) {
			h.oauthFail(w, r, oauth.BadRequest(oauth.ErrorInvalidVerifier))
			return
		}
	} else if client.Config.Secret != "" {
		if subtle.ConstantTimeCompare([]byte(req.ClientSecret), []byte(client.Config.Secret)) != 1 {
			h.oauthFail(w, r, oauth.Unauthorized(oauth.ErrorWrongClientSecret))
			return
		}
	}

	access, err := h.mintAccessToken(&session.Payload)
	if err != nil {
		h.oauthFail(w, r, oauth.Internal(err))
		return
	}

	refresh := &codestore.AuthSession{
		Kind:       codestore.KindRefresh,
		Code:       codestore.GenerateCode(),
		Scopes:     session.Scopes,
		Payload:    session.Payload,
		TTLSeconds: int64(h.settings.RefreshTTL.Seconds()),
	}
	if err := h.codes.Put(r.Context(), refresh); err != nil {
		h.oauthFail(w, r, oauth.Dependency(err))
		return
	}
	h.events.TokenStored()
	h.events.OAuthSuccess()

	writeJSON(w, http.StatusOK, oauth.TokenResponse{
		AccessToken:  access,
		TokenType:    oauth.TokenTypeBearer,
		ExpiresIn:    int64(h.settings.TokenExpiration.Seconds()),
		RefreshToken: refresh.Code,
		Scope:        oauth.JoinScopes(session.Scopes),
	})
}

// tokenRefresh mints a fresh access token from a stored refresh
// session. The refresh token stays valid until its TTL runs out.
func (h *Handlers) tokenRefresh(w http.ResponseWriter, r *http.Request, req *tokenRequest) {
	session, err := h.codes.Get(r.Context(), codestore.KindRefresh, req.RefreshToken, false)
	if err != nil {
		h.oauthFail(w, r, oauth.Dependency(err))
		return
	}
	if session == nil {
		h.oauthFail(w, r, oauth.BadRequest(oauth.ErrorInvalidGrant))
		return
	}

	access, err := h.mintAccessToken(&session.Payload)
	if err != nil {
		h.oauthFail(w, r, oauth.Internal(err))
		return
	}
	h.events.OAuthSuccess()

	writeJSON(w, http.StatusOK, oauth.TokenResponse{
		AccessToken:  access,
		TokenType:    oauth.TokenTypeBearer,
		ExpiresIn:    int64(h.settings.TokenExpiration.Seconds()),
		RefreshToken: req.RefreshToken,
		Scope:        oauth.JoinScopes(session.Scopes),
	})
}

// tokenPassword runs the resource-owner grant through the tenant's
// login provider. No refresh token is issued.
func (h *Handlers) tokenPassword(w http.ResponseWriter, r *http.Request, req *tokenRequest) {
	info := requestcontext.FromRequest(r)
	tenant := info.Tenant
	if tenant == nil {
		h.oauthFail(w, r, oauth.BadRequest(oauth.ErrorNoTenant))
		return
	}

	sandbox, err := h.scripts.NewSandbox(tenant.Config.ProviderScripts)
	if err != nil {
		h.oauthFail(w, r, oauth.Forbidden(oauth.ErrorForbidden).WithCause(err))
		return
	}
	defer sandbox.Close()

	if !sandbox.HasClass(script.ClassUserLoginProvider) {
		h.oauthFail(w, r, oauth.Forbidden(oauth.ErrorNoLoginProvider))
		return
	}

	instance, err := sandbox.Run(r.Context(), script.ClassUserLoginProvider, map[string]any{
		"username": req.Username,
		"password": req.Password,
	})
	if err != nil {
		logger.Warnf("login provider of tenant %s failed: %v", tenant.Name, err)
		h.oauthFail(w, r, oauth.Forbidden(oauth.ErrorForbidden))
		return
	}
	canLogin, _ := instance.Bool("canLogin")
	if !canLogin || !sandbox.Decision() {
		h.oauthFail(w, r, oauth.Forbidden(oauth.ErrorForbidden))
		return
	}

	subject := req.Username
	if override, ok := sandbox.CommittedSubject(); ok {
		subject = override
	}
	role, _ := instance.String("role")
	profile, _ := instance.Object("userProfile")

	scopes := oauth.SplitScopes(req.Scope)
	if info.Client != nil {
		scopes = oauth.IntersectScopes(scopes, info.Client.Config.Scopes)
	}

	now := time.Now()
	payload := &oauth.TokenPayload{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(h.settings.TokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Tenant:  tenant.Name,
		Role:    role,
		User:    req.Username,
		Profile: profile,
	}

	access, err := h.signer.Sign(payload, signer.AlgHS256)
	if err != nil {
		h.oauthFail(w, r, oauth.Internal(err))
		return
	}
	h.events.OAuthSuccess()

	writeJSON(w, http.StatusOK, oauth.TokenResponse{
		AccessToken: access,
		TokenType:   oauth.TokenTypeBearer,
		ExpiresIn:   int64(h.settings.TokenExpiration.Seconds()),
		Scope:       oauth.JoinScopes(scopes),
	})
}

// tokenClientCredentials authenticates the client itself.
func (h *Handlers) tokenClientCredentials(w http.ResponseWriter, r *http.Request, req *tokenRequest) {
	info := requestcontext.FromRequest(r)
	client := info.Client
	if client == nil {
		h.oauthFail(w, r, oauth.BadRequest(oauth.ErrorNoClient))
		return
	}
	if !client.AllowsGrant(oauth.GrantTypeClientCredentials) {
		h.oauthFail(w, r, oauth.Forbidden(oauth.ErrorForbidden))
		return
	}
	if client.Config.Secret == "" ||
		subtle.ConstantTimeCompare([]byte(req.ClientSecret), []byte(client.Config.Secret)) != 1 {
		h.oauthFail(w, r, oauth.Unauthorized(oauth.ErrorWrongClientSecret))
		return
	}

	scopes := oauth.IntersectScopes(oauth.SplitScopes(req.Scope), client.Config.Scopes)

	now := time.Now()
	payload := &oauth.TokenPayload{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   client.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.settings.TokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Tenant: client.Config.TenantName,
		Role:   "service",
	}

	access, err := h.signer.Sign(payload, signer.AlgHS256)
	if err != nil {
		h.oauthFail(w, r, oauth.Internal(err))
		return
	}
	h.events.OAuthSuccess()

	writeJSON(w, http.StatusOK, oauth.TokenResponse{
		AccessToken: access,
		TokenType:   oauth.TokenTypeBearer,
		ExpiresIn:   int64(h.settings.TokenExpiration.Seconds()),
		Scope:       oauth.JoinScopes(scopes),
	})
}

// mintAccessToken signs a fresh HS256 access token reusing the stored
// claims with a new validity window.
func (h *Handlers) mintAccessToken(stored *oauth.TokenPayload) (string, error) {
	now := time.Now()
	payload := *stored
	payload.ExpiresAt = jwt.NewNumericDate(now.Add(h.settings.TokenExpiration))
	payload.IssuedAt = jwt.NewNumericDate(now)
	return h.signer.Sign(&payload, signer.AlgHS256)
}

// TokenInfo returns the verified claims of the presented token.
func (h *Handlers) TokenInfo(w http.ResponseWriter, r *http.Request) {
	info := requestcontext.FromRequest(r)
	if !info.Authenticated() {
		h.fail(w, r, oauth.Unauthorized(oauth.ErrorUnauthorized))
		return
	}
	writeJSON(w, http.StatusOK, info.Payload)
}
