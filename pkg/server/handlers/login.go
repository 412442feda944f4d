// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
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

// LoginForm renders the login page. Interceptor redirects land here
// with the original URL in the for parameter.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("for")
	if location == "" {
		location = r.URL.Query().Get("location")
	}
	if location == "" {
		location = "/"
	}
	h.renderLogin(w, r, http.StatusOK, "", location)
}

// Login authenticates a user against the tenant's provider scripts and
// establishes the browser session.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	info := requestcontext.FromRequest(r)
	h.events.LoginAttempt()

	if err := r.ParseForm(); err != nil {
		h.fail(w, r, oauth.BadRequest(oauth.ErrorBadRequest).WithCause(err))
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	location := r.PostFormValue("location")
	if location == "" {
		location = "/"
	}

	tenant := info.Tenant
	if tenant == nil {
		h.fail(w, r, oauth.BadRequest(oauth.ErrorNoTenant))
		return
	}
	clientID := ""
	if info.Client != nil {
		clientID = info.Client.ID.String()
	}

	sandbox, err := h.scripts.NewSandbox(tenant.Config.ProviderScripts)
	if err != nil {
		logger.Errorf("provider scripts of tenant %s failed to load: %v", tenant.Name, err)
		h.events.LoginFailure(tenant.Name, clientID, oauth.ErrorForbidden)
		h.fail(w, r, oauth.Forbidden(oauth.ErrorForbidden).WithCause(err))
		return
	}
	defer sandbox.Close()

	if sandbox.HasClass(script.ClassUserValidationProvider) {
		instance, err := sandbox.Run(r.Context(), script.ClassUserValidationProvider, map[string]any{
			"username": username,
		})
		if err != nil && instance == nil {
			h.events.LoginFailure(tenant.Name, clientID, oauth.ErrorInvalidUsername)
			h.renderLogin(w, r, http.StatusUnauthorized, oauth.ErrorInvalidUsername, location)
			return
		}
		if valid, ok := instance.Bool("isValid"); ok && !valid {
			h.events.LoginFailure(tenant.Name, clientID, oauth.ErrorInvalidUsername)
			h.renderLogin(w, r, http.StatusUnauthorized, oauth.ErrorInvalidUsername, location)
			return
		}
	}

	var role string
	var profile map[string]any
	subject := username

	if sandbox.HasClass(script.ClassUserLoginProvider) {
		instance, err := sandbox.Run(r.Context(), script.ClassUserLoginProvider, map[string]any{
			"username": username,
			"password": password,
		})
		if err != nil {
			// Provider faults, timeouts included, read as a declined
			// login to the user.
			logger.Warnf("login provider of tenant %s failed: %v", tenant.Name, err)
			h.events.LoginFailure(tenant.Name, clientID, oauth.ErrorInvalidCredentials)
			h.renderLogin(w, r, http.StatusUnauthorized, oauth.ErrorInvalidCredentials, location)
			return
		}

		canLogin, _ := instance.Bool("canLogin")
		if !canLogin || !sandbox.Decision() {
			h.events.LoginFailure(tenant.Name, clientID, oauth.ErrorInvalidCredentials)
			h.renderLogin(w, r, http.StatusUnauthorized, oauth.ErrorInvalidCredentials, location)
			return
		}

		role, _ = instance.String("role")
		profile, _ = instance.Object("userProfile")
		if override, ok := sandbox.CommittedSubject(); ok {
			subject = override
		}
	} else if h.settings.IsProduction() {
		h.events.LoginFailure(tenant.Name, clientID, oauth.ErrorNoLoginProvider)
		h.fail(w, r, oauth.Forbidden(oauth.ErrorNoLoginProvider))
		return
	}
	// Development without a login provider admits anyone; handy for
	// local testing against example tenants.

	token, expiresAt, err := h.mintSessionToken(info, tenant.Name, subject, username, role, profile)
	if err != nil {
		h.fail(w, r, oauth.Internal(err))
		return
	}

	cookieDomain := ""
	if info.Mode == requestcontext.ModeInterceptor {
		cookieDomain = tenant.CookieDomain()
	}
	h.sessions.Set(w, token, cookieDomain, time.Until(expiresAt))

	login := codestore.NewLoginSession()
	login.TTLSeconds = int64(h.settings.LoginSessionTTL.Seconds())
	if err := h.codes.Push(r.Context(), login); err != nil {
		h.fail(w, r, oauth.Dependency(err))
		return
	}

	target, err := appendQuery(location, map[string]string{"loginid": login.LoginID.String()})
	if err != nil {
		target = location
	}

	h.events.LoginSuccess()
	logger.Infow("login succeeded", "tenant", tenant.Name, "subject", subject, "mode", info.Mode)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// mintSessionToken builds and signs the session JWT. OAuth mode signs
// HS256, interceptor mode RS256 with the responsibility binding.
func (h *Handlers) mintSessionToken(info *requestcontext.RequestInfo, tenant, subject, username, role string, profile map[string]any) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(h.settings.TokenExpiration)

	payload := &oauth.TokenPayload{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Tenant:  tenant,
		Role:    role,
		User:    username,
		Profile: profile,
	}

	alg := signer.AlgHS256
	if info.Mode == requestcontext.ModeInterceptor {
		alg = signer.AlgRS256
		payload.Responsibility = oauth.ResponsibilityHash(info.ResponsibleDomain)
	}

	token, err := h.signer.Sign(payload, alg)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}
