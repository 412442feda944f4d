// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package entities

import (
	"fmt"
	"regexp"

	"sigs.k8s.io/yaml"
)

// slugPattern is the shape a tenant name must have: it doubles as a
// directory name for the template loader and as a metric label.
var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// TenantInterceptor is the forward-auth configuration of a tenant.
type TenantInterceptor struct {
	// Enabled turns the interceptor endpoint on for this tenant.
	Enabled bool `json:"enabled"`

	// Domain is the login domain unauthenticated requests are sent to.
	Domain string `json:"domain,omitempty"`

	// Cookie is the domain scope of the session cookie, e.g. ".t.test".
	Cookie string `json:"cookie,omitempty"`
}

// TenantInformations are the legal/info URLs surfaced on login pages
// and in the discovery document.
type TenantInformations struct {
	ImprintURL  string `json:"imprint_url,omitempty"`
	PrivacyURL  string `json:"privacy_url,omitempty"`
	RegisterURL string `json:"register_url,omitempty"`
}

// TemplateSource describes the object-store location per-tenant
// template assets are fetched from.
type TemplateSource struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Host            string `json:"host,omitempty"`
	Bucket          string `json:"bucket"`
	Path            string `json:"path,omitempty"`
	Region          string `json:"region,omitempty"`
}

// TenantSpec is the declarative configuration of a tenant.
type TenantSpec struct {
	// Hosts are the domains this tenant is responsible for. Each entry
	// is a literal domain or a wildcard pattern like "*.example.com".
	Hosts []string `json:"hosts"`

	// Interceptor configures forward-auth mode.
	Interceptor *TenantInterceptor `json:"interceptor,omitempty"`

	// SilentLogin, when false, forces a fresh form submission on every
	// authorize call even if a valid session exists. Defaults to true.
	SilentLogin *bool `json:"silent_login,omitempty"`

	// ProviderScripts are the verbatim provider script sources, in
	// order. Classification by declared class name happens at runtime.
	ProviderScripts []string `json:"providers,omitempty"`

	// Templates points at the object-store location of custom
	// template assets.
	Templates *TemplateSource `json:"templates,omitempty"`

	// Informations carries imprint/privacy/register URLs.
	Informations *TenantInformations `json:"informations,omitempty"`
}

// Tenant is the unit of isolation: it owns hosts and clients.
type Tenant struct {
	// Name is the unique tenant slug.
	Name string

	// Ref is the declarative source the tenant was loaded from.
	Ref Ref

	// Config is the declarative spec.
	Config TenantSpec
}

// SilentLogin reports the effective silent-login setting (default true).
func (t *Tenant) SilentLogin() bool {
	return t.Config.SilentLogin == nil || *t.Config.SilentLogin
}

// InterceptorEnabled reports whether forward-auth is on for the tenant.
func (t *Tenant) InterceptorEnabled() bool {
	return t.Config.Interceptor != nil && t.Config.Interceptor.Enabled
}

// CookieDomain returns the interceptor cookie scope, or "" in OAuth mode.
func (t *Tenant) CookieDomain() string {
	if t.Config.Interceptor == nil {
		return ""
	}
	return t.Config.Interceptor.Cookie
}

// Informations returns the tenant's info URLs, zero-valued when the
// document declares none.
func (t *Tenant) Informations() TenantInformations {
	if t.Config.Informations == nil {
		return TenantInformations{}
	}
	return *t.Config.Informations
}

// LoginDomain returns the interceptor login domain, or "".
func (t *Tenant) LoginDomain() string {
	if t.Config.Interceptor == nil {
		return ""
	}
	return t.Config.Interceptor.Domain
}

// MatchesHost reports whether any of the tenant's host patterns matches
// the given request host.
func (t *Tenant) MatchesHost(host string) bool {
	for _, pattern := range t.Config.Hosts {
		if HostMatches(pattern, host) {
			return true
		}
	}
	return false
}

// HasExactHost reports whether the host is configured as a literal.
func (t *Tenant) HasExactHost(host string) bool {
	for _, pattern := range t.Config.Hosts {
		if pattern == host {
			return true
		}
	}
	return false
}

// Validate checks the tenant invariants that do not need the registry.
func (t *Tenant) Validate() error {
	if !slugPattern.MatchString(t.Name) {
		return fmt.Errorf("tenant name %q is not a valid slug", t.Name)
	}
	if len(t.Config.Hosts) == 0 {
		return fmt.Errorf("tenant %q declares no hosts", t.Name)
	}
	return nil
}

// tenantDocument is the declarative document shape (YAML on disk, JSON
// from the control plane). Unknown fields are tolerated.
type tenantDocument struct {
	APIVersion string `json:"apiVersion,omitempty"`
	Kind       string `json:"kind"`
	Metadata   struct {
		Name string `json:"name"`
	} `json:"metadata"`
	Spec TenantSpec `json:"spec"`
}

// DecodeTenant parses a declarative Tenant document and validates it.
func DecodeTenant(ref Ref, doc []byte) (*Tenant, error) {
	var parsed tenantDocument
	if err := yaml.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse tenant document: %w", err)
	}
	if parsed.Kind != "" && parsed.Kind != "Tenant" {
		return nil, fmt.Errorf("unexpected document kind %q, want Tenant", parsed.Kind)
	}

	tenant := &Tenant{
		Name:   parsed.Metadata.Name,
		Ref:    ref,
		Config: parsed.Spec,
	}
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	return tenant, nil
}
