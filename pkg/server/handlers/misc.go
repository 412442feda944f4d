// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/uitsmijter/uitsmijter/pkg/logger"
	"github.com/uitsmijter/uitsmijter/pkg/server/requestcontext"
	"github.com/uitsmijter/uitsmijter/pkg/templates"
	"github.com/uitsmijter/uitsmijter/pkg/versions"
)

// Landing renders the tenant's index page.
func (h *Handlers) Landing(w http.ResponseWriter, r *http.Request) {
	info := requestcontext.FromRequest(r)
	slug := ""
	tenantName := ""
	data := &templates.PageData{}
	if info.Tenant != nil {
		slug = info.Tenant.Name
		tenantName = info.Tenant.Name
		infos := info.Tenant.Informations()
		data.ImprintURL = infos.ImprintURL
		data.PrivacyURL = infos.PrivacyURL
		data.RegisterURL = infos.RegisterURL
	}
	data.TenantName = tenantName
	data.Payload = info.Payload

	if err := h.templates.Render(w, slug, "index", http.StatusOK, data); err != nil {
		logger.Errorf("failed to render index page: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// Health reports process liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// Ready reports whether the token store backend is reachable.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.codes.Healthy(r.Context()) {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Versions serves the build metadata. Routed only when enabled in the
// configuration.
func (h *Handlers) Versions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, versions.GetVersionInfo())
}
