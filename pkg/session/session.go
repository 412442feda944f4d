// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package session manages the browser session cookie. The cookie
// carries the same JWT used as an API bearer, so one login serves both
// the HTML flows and the API surface.
package session

import (
	"net/http"
	"time"
)

// killedValue replaces the token when a session is terminated.
const killedValue = "invalid"

// Manager writes and clears session cookies.
type Manager struct {
	cookieName string
	secure     bool
}

// NewManager creates a cookie manager. The secure flag controls the
// Secure attribute on every cookie written.
func NewManager(cookieName string, secure bool) *Manager {
	return &Manager{cookieName: cookieName, secure: secure}
}

// CookieName returns the configured cookie name.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// cookie builds the baseline cookie shared by Set and Kill.
func (m *Manager) cookie(value, domain string) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Set writes the session cookie. An empty domain scopes the cookie to
// the serving host (OAuth mode); interceptor mode passes the tenant's
// cookie domain so every subdomain shares the session.
func (m *Manager) Set(w http.ResponseWriter, token, domain string, ttl time.Duration) {
	c := m.cookie(token, domain)
	c.Expires = time.Now().Add(ttl)
	c.MaxAge = int(ttl.Seconds())
	http.SetCookie(w, c)
}

// Kill overwrites the session cookie with an expired one so the
// browser drops it. The domain must match the one used by Set.
func (m *Manager) Kill(w http.ResponseWriter, domain string) {
	c := m.cookie(killedValue, domain)
	c.Expires = time.Unix(0, 0)
	c.MaxAge = -1
	http.SetCookie(w, c)
}

// Token reads the session token from the request cookie. Returns an
// empty string when the cookie is absent or holds a killed value.
func (m *Manager) Token(r *http.Request) string {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == killedValue {
		return ""
	}
	return c.Value
}
