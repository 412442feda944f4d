// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/uitsmijter/uitsmijter/pkg/codestore"
	"github.com/uitsmijter/uitsmijter/pkg/logger"
	"github.com/uitsmijter/uitsmijter/pkg/oauth"
	"github.com/uitsmijter/uitsmijter/pkg/server/requestcontext"
)

// Authorize drives the authorization-code flow: an authenticated
// session gets a fresh code, everyone else gets the login page.
func (h *Handlers) Authorize(w http.ResponseWriter, r *http.Request) {
	info := requestcontext.FromRequest(r)
	h.events.AuthorizeAttempt()

	req, authErr := oauth.ParseAuthRequest(r.URL.Query())
	if authErr != nil {
		h.fail(w, r, authErr)
		return
	}
	if req.ResponseType != oauth.ResponseTypeCode {
		h.fail(w, r, oauth.BadRequest(oauth.ErrorBadRequest))
		return
	}

	client := info.Client
	if client == nil {
		h.fail(w, r, oauth.BadRequest(oauth.ErrorNoClient))
		return
	}
	if !client.AllowsGrant(oauth.GrantTypeAuthorizationCode) {
		h.fail(w, r, oauth.Forbidden(oauth.ErrorForbidden))
		return
	}

	// A loginid proves the request is a post-login re-entry: it was
	// issued by our own login handler moments ago.
	reentry := false
	if req.LoginID != "" {
		id, err := uuid.Parse(req.LoginID)
		if err != nil || !h.codes.Pull(r.Context(), id) {
			h.fail(w, r, oauth.BadRequest(oauth.ErrorBadLoginID))
			return
		}
		reentry = true
	}

	// Referrer gating applies to external entries only.
	if !reentry && client.HasReferrers() {
		if info.Referer == "" {
			h.fail(w, r, oauth.BadRequest(oauth.ErrorWrongReferer))
			return
		}
		if !client.ValidReferrer(info.Referer) {
			h.fail(w, r, oauth.Forbidden(oauth.ErrorWrongReferer))
			return
		}
	}

	payload := info.Payload
	if info.Expired {
		payload = nil
	}

	// With silent login disabled an existing session does not satisfy
	// an external authorize entry.
	if info.Tenant != nil && !info.Tenant.SilentLogin() && !reentry {
		payload = nil
	}

	if payload == nil {
		h.renderLogin(w, r, http.StatusUnauthorized, "", info.URI)
		return
	}

	if payload.Tenant != client.Config.TenantName {
		h.fail(w, r, oauth.Forbidden(oauth.ErrorWrongTenant))
		return
	}

	if client.Config.PKCEOnly && req.CodeChallengeMethod == oauth.ChallengeMethodNone {
		h.fail(w, r, oauth.Forbidden(oauth.ErrorPKCERequired))
		return
	}

	if client.Config.Secret != "" {
		secret := r.URL.Query().Get("client_secret")
		if subtle.ConstantTimeCompare([]byte(secret), []byte(client.Config.Secret)) != 1 {
			h.fail(w, r, oauth.Unauthorized(oauth.ErrorWrongClientSecret))
			return
		}
	}

	redirect, err := checkedRedirect(client, req.RedirectURI)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	scopes := oauth.IntersectScopes(req.Scopes, client.Config.Scopes)

	session := &codestore.AuthSession{
		Kind:          codestore.KindCode,
		Code:          codestore.GenerateCode(),
		State:         req.State,
		Scopes:        scopes,
		Payload:       *payload,
		Redirect:      redirect,
		PKCEChallenge: req.CodeChallenge,
		PKCEMethod:    req.CodeChallengeMethod,
		TTLSeconds:    int64(h.settings.AuthCodeTTL.Seconds()),
	}
	if err := h.codes.Put(r.Context(), session); err != nil {
		if errors.Is(err, codestore.ErrCodeTaken) {
			h.fail(w, r, oauth.BadRequest(oauth.ErrorBadRequest).WithCause(err))
			return
		}
		h.fail(w, r, oauth.Dependency(err))
		return
	}
	h.events.TokenStored()

	target, err2 := appendQuery(redirect, map[string]string{
		"code":  session.Code,
		"state": req.State,
	})
	if err2 != nil {
		h.fail(w, r, oauth.Internal(err2))
		return
	}

	logger.Debugw("issued authorization code", "client", client.ID, "tenant", client.Config.TenantName)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// appendQuery adds parameters to a URL, preserving existing ones.
func appendQuery(target string, params map[string]string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
