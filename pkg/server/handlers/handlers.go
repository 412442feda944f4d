// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package handlers implements the HTTP surface of the authorization
// server: the OAuth endpoints, the login and logout flows, the
// forward-auth interceptor and the discovery documents.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/uitsmijter/uitsmijter/pkg/codestore"
	"github.com/uitsmijter/uitsmijter/pkg/config"
	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/events"
	"github.com/uitsmijter/uitsmijter/pkg/logger"
	"github.com/uitsmijter/uitsmijter/pkg/oauth"
	"github.com/uitsmijter/uitsmijter/pkg/script"
	"github.com/uitsmijter/uitsmijter/pkg/server/requestcontext"
	"github.com/uitsmijter/uitsmijter/pkg/session"
	"github.com/uitsmijter/uitsmijter/pkg/signer"
	"github.com/uitsmijter/uitsmijter/pkg/templates"
)

// Handlers bundles every dependency of the HTTP surface. All handles
// are injected so tests run against their own instances.
type Handlers struct {
	settings  *config.Settings
	store     *entities.Store
	codes     codestore.Store
	signer    *signer.Signer
	scripts   *script.Host
	sessions  *session.Manager
	templates *templates.Loader
	events    *events.Recorder
}

// New wires the handler set.
func New(
	settings *config.Settings,
	store *entities.Store,
	codes codestore.Store,
	sign *signer.Signer,
	scripts *script.Host,
	sessions *session.Manager,
	tmpl *templates.Loader,
	recorder *events.Recorder,
) *Handlers {
	return &Handlers{
		settings:  settings,
		store:     store,
		codes:     codes,
		signer:    sign,
		scripts:   scripts,
		sessions:  sessions,
		templates: tmpl,
		events:    recorder,
	}
}

// wantsHTML decides the error representation from the Accept header.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// fail renders a domain error, negotiated between the HTML error page
// and the JSON error object. Unknown errors surface as internal.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	oauthErr, ok := err.(*oauth.Error)
	if !ok {
		logger.Errorf("unhandled error on %s: %v", r.URL.Path, err)
		oauthErr = oauth.Internal(err)
	}

	if wantsHTML(r) {
		info := requestcontext.FromRequest(r)
		slug := ""
		if info.Tenant != nil {
			slug = info.Tenant.Name
		}
		renderErr := h.templates.Render(w, slug, "error", oauthErr.Status, &templates.PageData{
			Reason: oauthErr.Code,
			Status: oauthErr.Status,
		})
		if renderErr != nil {
			logger.Errorf("failed to render error page: %v", renderErr)
			http.Error(w, oauthErr.Code, oauthErr.Status)
		}
		return
	}

	writeJSON(w, oauthErr.Status, map[string]any{
		"error":  true,
		"reason": oauthErr.Code,
	})
}

// writeJSON emits a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("failed to write response: %v", err)
	}
}

// checkedRedirect validates a candidate redirect target: an internal
// re-entry into the authorization endpoint passes as-is, everything
// else must match one of the client's redirect patterns.
func checkedRedirect(client *entities.Client, candidate string) (string, error) {
	if strings.HasPrefix(candidate, "/authorize?") {
		return candidate, nil
	}
	if client != nil && client.ValidRedirect(candidate) {
		return candidate, nil
	}
	return "", oauth.BadRequest(oauth.ErrorRedirectMismatch)
}

// renderLogin shows the login page, carrying the original location for
// post-login re-entry.
func (h *Handlers) renderLogin(w http.ResponseWriter, r *http.Request, status int, reason, location string) {
	info := requestcontext.FromRequest(r)
	slug := ""
	data := &templates.PageData{
		Reason:   reason,
		Status:   status,
		Location: location,
	}
	if info.Tenant != nil {
		slug = info.Tenant.Name
		data.TenantName = info.Tenant.Name
		infos := info.Tenant.Informations()
		data.ImprintURL = infos.ImprintURL
		data.PrivacyURL = infos.PrivacyURL
		data.RegisterURL = infos.RegisterURL
	}
	if err := h.templates.Render(w, slug, "login", status, data); err != nil {
		logger.Errorf("failed to render login page: %v", err)
		http.Error(w, reason, http.StatusInternalServerError)
	}
}
