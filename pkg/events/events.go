// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package events records the operational counters of the authorization
// server and reports per-client denials back to the control plane.
package events

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uitsmijter/uitsmijter/pkg/entities"
)

// namespace prefixes every metric name.
const namespace = "uitsmijter"

// StatusCallback receives tenant and client state for back-reporting.
// The control-plane source uses it to patch resource status.
type StatusCallback func(tenant, client, reason string)

// Recorder holds the counter set behind its own registry, so tests and
// embedders run isolated instances.
type Recorder struct {
	registry *prometheus.Registry

	loginAttempts      prometheus.Counter
	loginSuccess       prometheus.Counter
	loginFailure       prometheus.Counter
	logout             prometheus.Counter
	interceptorSuccess prometheus.Counter
	interceptorFailure prometheus.Counter
	authorizeAttempts  prometheus.Counter
	oauthSuccess       prometheus.Counter
	oauthFailure       prometheus.Counter
	tokenStored        prometheus.Counter
	tenantsCount       prometheus.Gauge
	clientsCount       prometheus.Gauge

	mu       sync.Mutex
	denials  map[string]int64
	callback StatusCallback
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithStatusCallback installs the back-reporting hook.
func WithStatusCallback(cb StatusCallback) RecorderOption {
	return func(r *Recorder) {
		r.callback = cb
	}
}

// NewRecorder creates a recorder with a fresh registry.
func NewRecorder(opts ...RecorderOption) *Recorder {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}

	r := &Recorder{
		registry:           prometheus.NewRegistry(),
		loginAttempts:      counter("login_attempts", "Number of login form submissions."),
		loginSuccess:       counter("login_success", "Number of successful logins."),
		loginFailure:       counter("login_failure", "Number of declined or failed logins."),
		logout:             counter("logout", "Number of completed logouts."),
		interceptorSuccess: counter("interceptor_success", "Number of forward-auth requests admitted."),
		interceptorFailure: counter("interceptor_failure", "Number of forward-auth requests rejected."),
		authorizeAttempts:  counter("authorize_attempts", "Number of authorization attempts."),
		oauthSuccess:       counter("oauth_success", "Number of successful grant exchanges."),
		oauthFailure:       counter("oauth_failure", "Number of failed grant exchanges."),
		tokenStored:        counter("token_stored", "Number of sessions written to the code store."),
		tenantsCount:       gauge("tenants_count", "Number of tenants currently loaded."),
		clientsCount:       gauge("clients_count", "Number of clients currently loaded."),
		denials:            map[string]int64{},
	}
	for _, opt := range opts {
		opt(r)
	}

	r.registry.MustRegister(
		r.loginAttempts, r.loginSuccess, r.loginFailure, r.logout,
		r.interceptorSuccess, r.interceptorFailure,
		r.authorizeAttempts, r.oauthSuccess, r.oauthFailure,
		r.tokenStored, r.tenantsCount, r.clientsCount,
	)
	return r
}

// Handler serves the registry in the text exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// LoginAttempt records a login form submission.
func (r *Recorder) LoginAttempt() { r.loginAttempts.Inc() }

// LoginSuccess records a successful login.
func (r *Recorder) LoginSuccess() { r.loginSuccess.Inc() }

// LoginFailure records a declined login and reports it for the client.
func (r *Recorder) LoginFailure(tenant, client, reason string) {
	r.loginFailure.Inc()
	r.deny(tenant, client, reason)
}

// Logout records a completed logout.
func (r *Recorder) Logout() { r.logout.Inc() }

// InterceptorSuccess records an admitted forward-auth request.
func (r *Recorder) InterceptorSuccess() { r.interceptorSuccess.Inc() }

// InterceptorFailure records a rejected forward-auth request.
func (r *Recorder) InterceptorFailure(tenant, reason string) {
	r.interceptorFailure.Inc()
	r.deny(tenant, "", reason)
}

// AuthorizeAttempt records an authorization attempt.
func (r *Recorder) AuthorizeAttempt() { r.authorizeAttempts.Inc() }

// OAuthSuccess records a successful grant exchange.
func (r *Recorder) OAuthSuccess() { r.oauthSuccess.Inc() }

// OAuthFailure records a failed grant exchange for the client.
func (r *Recorder) OAuthFailure(tenant, client, reason string) {
	r.oauthFailure.Inc()
	r.deny(tenant, client, reason)
}

// TokenStored records a session write.
func (r *Recorder) TokenStored() { r.tokenStored.Inc() }

// deny bumps the per-client denial count and invokes the callback.
func (r *Recorder) deny(tenant, client, reason string) {
	r.mu.Lock()
	if client != "" {
		r.denials[client]++
	}
	cb := r.callback
	r.mu.Unlock()

	if cb != nil {
		cb(tenant, client, reason)
	}
}

// Denials returns the denial count recorded for a client id.
func (r *Recorder) Denials(client string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.denials[client]
}

// Attach subscribes the recorder to registry changes so the tenant and
// client gauges track the live entity counts.
func (r *Recorder) Attach(store *entities.Store) {
	r.tenantsCount.Set(float64(store.TenantCount()))
	r.clientsCount.Set(float64(store.ClientCount()))

	store.Subscribe(func(entities.Change) {
		r.tenantsCount.Set(float64(store.TenantCount()))
		r.clientsCount.Set(float64(store.ClientCount()))
	})
}

// Registry exposes the backing registry for the metrics endpoint.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
