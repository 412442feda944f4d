// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"net/url"

	"github.com/uitsmijter/uitsmijter/pkg/logger"
	"github.com/uitsmijter/uitsmijter/pkg/oauth"
	"github.com/uitsmijter/uitsmijter/pkg/server/requestcontext"
)

// Interceptor answers forward-auth queries from the reverse proxy: 200
// admits the upstream request, 401 sends the browser to the tenant's
// login page.
func (h *Handlers) Interceptor(w http.ResponseWriter, r *http.Request) {
	info := requestcontext.FromRequest(r)

	tenant := info.Tenant
	if tenant == nil {
		h.events.InterceptorFailure("", oauth.ErrorNoTenant)
		h.fail(w, r, oauth.NotFound(oauth.ErrorNoTenant))
		return
	}
	if !tenant.InterceptorEnabled() {
		h.events.InterceptorFailure(tenant.Name, oauth.ErrorForbidden)
		h.fail(w, r, oauth.Forbidden(oauth.ErrorForbidden))
		return
	}

	if !info.Authenticated() {
		h.events.InterceptorFailure(tenant.Name, oauth.ErrorUnauthorized)
		h.redirectToLogin(w, r, info)
		return
	}

	h.events.InterceptorSuccess()
	w.Header().Set("Authorization", "Bearer "+info.Token)
	w.Header().Set("X-User-Ident", info.Payload.Subject)
	w.WriteHeader(http.StatusOK)
}

// redirectToLogin answers 401 with a Location the proxy turns into a
// redirect. The original URL rides along in the for parameter.
func (h *Handlers) redirectToLogin(w http.ResponseWriter, r *http.Request, info *requestcontext.RequestInfo) {
	original := info.Scheme + "://" + info.Host + info.URI
	target := url.URL{
		Scheme:   info.Scheme,
		Host:     info.Tenant.LoginDomain(),
		Path:     "/login",
		RawQuery: url.Values{"for": {original}}.Encode(),
	}

	logger.Debugw("interceptor rejected request", "tenant", info.Tenant.Name, "expired", info.Expired)
	w.Header().Set("Location", target.String())
	w.WriteHeader(http.StatusUnauthorized)
}
