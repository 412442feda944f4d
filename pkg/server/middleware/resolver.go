// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package middleware holds the request resolution middleware sitting
// in front of every handler: it decides tenant, client, mode and
// identity before any business logic runs.
package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/uitsmijter/uitsmijter/pkg/config"
	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/logger"
	"github.com/uitsmijter/uitsmijter/pkg/oauth"
	"github.com/uitsmijter/uitsmijter/pkg/server/requestcontext"
	"github.com/uitsmijter/uitsmijter/pkg/session"
	"github.com/uitsmijter/uitsmijter/pkg/signer"
)

// maxBodyPeek bounds how much of a request body the resolver reads
// while looking for a client_id.
const maxBodyPeek = 1 << 20

// interceptorHeaderValue marks a forward-auth request.
const interceptorHeaderValue = "interceptor"

// Resolver builds the RequestInfo for every request. Resolution never
// fails a request: whatever cannot be resolved stays nil and the
// handler decides what that means.
type Resolver struct {
	settings *config.Settings
	store    *entities.Store
	signer   *signer.Signer
	sessions *session.Manager
}

// NewResolver creates the resolver middleware.
func NewResolver(settings *config.Settings, store *entities.Store, sign *signer.Signer, sessions *session.Manager) *Resolver {
	return &Resolver{
		settings: settings,
		store:    store,
		signer:   sign,
		sessions: sessions,
	}
}

// Handler wraps the next handler with request resolution.
func (rs *Resolver) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := rs.resolve(r)
		next.ServeHTTP(w, r.WithContext(requestcontext.With(r.Context(), info)))
	})
}

// resolve constructs the RequestInfo from the raw request.
func (rs *Resolver) resolve(r *http.Request) *requestcontext.RequestInfo {
	info := &requestcontext.RequestInfo{
		Scheme:  rs.scheme(r),
		Host:    rs.host(r),
		URI:     r.RequestURI,
		Mode:    requestcontext.ModeOAuth,
		Referer: r.Referer(),
	}
	if strings.EqualFold(r.Header.Get(rs.settings.InterceptorHeader), interceptorHeaderValue) {
		info.Mode = requestcontext.ModeInterceptor
	}

	info.Tenant = rs.store.TenantByHost(info.Host)

	// Sessions span the tenant's cookie domain in interceptor mode, so
	// responsibility binds to that scope instead of the request host.
	info.ResponsibleDomain = info.Host
	if info.Mode == requestcontext.ModeInterceptor && info.Tenant != nil {
		if domain := info.Tenant.CookieDomain(); domain != "" {
			info.ResponsibleDomain = domain
		}
	}

	if id := rs.clientID(r); id != "" {
		info.Client = rs.store.Client(id)
	}

	rs.attachIdentity(r, info)
	return info
}

// scheme prefers the forwarded proto over the server configuration.
func (rs *Resolver) scheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if rs.settings.Secure {
		return "https"
	}
	return "http"
}

// host prefers the forwarded host, then the request host, then the
// first known tenant host, then the configured default.
func (rs *Resolver) host(r *http.Request) string {
	if host := r.Header.Get("X-Forwarded-Host"); host != "" {
		return stripPort(host)
	}
	if r.Host != "" {
		return stripPort(r.Host)
	}
	for _, tenant := range rs.store.Tenants() {
		if len(tenant.Config.Hosts) > 0 {
			return tenant.Config.Hosts[0]
		}
	}
	return rs.settings.DefaultHost
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i > 0 && !strings.Contains(host[i:], "]") {
		return host[:i]
	}
	return host
}

// clientID extracts the client_id, body first and query second. The
// consumed body is restored so handlers can read it again.
func (rs *Resolver) clientID(r *http.Request) string {
	if id := rs.clientIDFromBody(r); id != "" {
		return id
	}
	return r.URL.Query().Get("client_id")
}

func (rs *Resolver) clientIDFromBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyPeek))
	_ = r.Body.Close()
	if err != nil {
		r.Body = http.NoBody
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(data))

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch contentType {
	case "application/json":
		var body struct {
			ClientID string `json:"client_id"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return ""
		}
		return body.ClientID

	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(data))
		if err != nil {
			return ""
		}
		return values.Get("client_id")

	default:
		return ""
	}
}

// attachIdentity extracts and verifies the presented token: the
// Authorization header wins over the session cookie. A cookie-borne
// token is bridged into the Authorization header for downstream code.
func (rs *Resolver) attachIdentity(r *http.Request, info *requestcontext.RequestInfo) {
	token := oauth.BearerToken(r)
	if token == "" {
		token = rs.sessions.Token(r)
		if token != "" && r.Header.Get("Authorization") == "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if token == "" {
		return
	}
	info.Token = token

	payload, err := rs.signer.Verify(token)
	switch {
	case err == nil:
	case errors.Is(err, signer.ErrExpired):
		info.Expired = true
	default:
		// Invalid tokens degrade the request to anonymous.
		logger.Debugw("rejecting presented token", "error", err)
		return
	}

	// A token minted for another tenant counts as no token at all.
	if info.Tenant == nil || payload.Tenant != info.Tenant.Name {
		info.Expired = false
		return
	}

	// A domain-bound token is only valid within its responsible scope.
	if payload.Responsibility != "" &&
		payload.Responsibility != oauth.ResponsibilityHash(info.ResponsibleDomain) {
		info.Expired = false
		return
	}

	info.Payload = payload
	info.Subject = payload.Subject
}
