// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/uitsmijter/uitsmijter/pkg/logger"
	"github.com/uitsmijter/uitsmijter/pkg/server/requestcontext"
	"github.com/uitsmijter/uitsmijter/pkg/templates"
)

// LogoutPage renders the transient logout page. The page navigates to
// the finalize endpoint after a short delay so the browser refreshes
// its cookies first.
func (h *Handlers) LogoutPage(w http.ResponseWriter, r *http.Request) {
	info := requestcontext.FromRequest(r)
	slug := ""
	if info.Tenant != nil {
		slug = info.Tenant.Name
	}

	location := r.URL.Query().Get("location")
	if location == "" {
		location = "/"
	}

	if err := h.templates.Render(w, slug, "logout", http.StatusOK, &templates.PageData{
		Location: location,
	}); err != nil {
		logger.Errorf("failed to render logout page: %v", err)
		http.Error(w, "logout failed", http.StatusInternalServerError)
	}
}

// LogoutFinalize kills the session cookie, revokes the subject's
// stored sessions and redirects.
func (h *Handlers) LogoutFinalize(w http.ResponseWriter, r *http.Request) {
	info := requestcontext.FromRequest(r)

	cookieDomain := ""
	if info.Mode == requestcontext.ModeInterceptor && info.Tenant != nil {
		cookieDomain = info.Tenant.CookieDomain()
	}
	h.sessions.Kill(w, cookieDomain)

	if info.Payload != nil && info.Tenant != nil {
		if err := h.codes.Wipe(r.Context(), info.Tenant.Name, info.Payload.Subject); err != nil {
			logger.Errorf("failed to wipe sessions on logout: %v", err)
		}
	}
	h.events.Logout()

	location := r.URL.Query().Get("location")
	if location == "" {
		location = r.FormValue("location")
	}
	if location == "" {
		location = "/"
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
