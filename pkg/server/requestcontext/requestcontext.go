// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package requestcontext carries the per-request resolution result:
// which tenant and client the request addresses, which mode it runs
// in and what identity it presented.
package requestcontext

import (
	"context"
	"net/http"

	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/oauth"
)

// Mode distinguishes the two request surfaces.
type Mode string

// Request modes.
const (
	ModeOAuth       Mode = "oauth"
	ModeInterceptor Mode = "interceptor"
)

// RequestInfo is attached to the request context by the resolver
// middleware and read by every handler.
type RequestInfo struct {
	// Scheme and Host describe the outward-facing request target,
	// forwarded headers considered.
	Scheme string
	Host   string

	// URI is the original request URI.
	URI string

	// Mode is oauth unless the interceptor header was present.
	Mode Mode

	// ResponsibleDomain is the domain the session is scoped to.
	ResponsibleDomain string

	// Referer is the raw Referer header value.
	Referer string

	// Tenant resolved by host, nil when no tenant matches.
	Tenant *entities.Tenant

	// Client resolved by client_id, nil when absent or unknown.
	Client *entities.Client

	// Payload is the verified token payload, nil for anonymous
	// requests. Expired marks a structurally valid token past exp.
	Payload *oauth.TokenPayload
	Expired bool

	// Subject is the payload subject, empty for anonymous requests.
	Subject string

	// Token is the raw bearer presented with the request.
	Token string
}

// ServiceURL renders the outward-facing base URL of the request.
func (i *RequestInfo) ServiceURL() string {
	return i.Scheme + "://" + i.Host
}

// Authenticated reports whether a live identity is attached.
func (i *RequestInfo) Authenticated() bool {
	return i.Payload != nil && !i.Expired
}

type contextKey struct{}

// With attaches the info to the context.
func With(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, contextKey{}, info)
}

// From extracts the info. Handlers behind the resolver middleware can
// rely on a non-nil result; anywhere else an empty info is returned.
func From(ctx context.Context) *RequestInfo {
	if info, ok := ctx.Value(contextKey{}).(*RequestInfo); ok {
		return info
	}
	return &RequestInfo{Mode: ModeOAuth}
}

// FromRequest is shorthand for From(r.Context()).
func FromRequest(r *http.Request) *RequestInfo {
	return From(r.Context())
}
