// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package entities

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"
	"sigs.k8s.io/yaml"

	"github.com/uitsmijter/uitsmijter/pkg/oauth"
)

// ClientSpec is the declarative configuration of an OAuth client.
type ClientSpec struct {
	// TenantName references the owning tenant by name.
	TenantName string `json:"tenantname"`

	// RedirectURLs are anchored regular expressions a redirect_uri must
	// fully match.
	RedirectURLs []string `json:"redirect_urls"`

	// GrantTypes the client may use. Defaults to
	// {authorization_code, refresh_token}.
	GrantTypes []oauth.GrantType `json:"grant_types,omitempty"`

	// Scopes is the whitelist granted scopes are intersected with.
	Scopes []string `json:"scopes,omitempty"`

	// Referrers are anchored regular expressions the Referer header
	// must match when set.
	Referrers []string `json:"referrers,omitempty"`

	// Secret is the optional confidential client secret.
	Secret string `json:"secret,omitempty"`

	// PKCEOnly requires every authorization request to carry PKCE.
	PKCEOnly bool `json:"isPkceOnly,omitempty"`
}

// Client is a registered OAuth application within exactly one tenant.
type Client struct {
	// ID acts as the client_id. Globally unique.
	ID uuid.UUID

	// Name is the human-readable client name from the document.
	Name string

	// Ref is the declarative source the client was loaded from.
	Ref Ref

	// Config is the declarative spec.
	Config ClientSpec

	redirectPatterns []*regexp.Regexp
	referrerPatterns []*regexp.Regexp
}

// NewClient builds a client from its parts, compiling the redirect and
// referrer patterns. Documents go through DecodeClient instead.
func NewClient(id uuid.UUID, name string, ref Ref, spec ClientSpec) (*Client, error) {
	client := &Client{
		ID:     id,
		Name:   name,
		Ref:    ref,
		Config: spec,
	}
	if err := client.Validate(); err != nil {
		return nil, err
	}
	if err := client.compilePatterns(); err != nil {
		return nil, err
	}
	return client, nil
}

// GrantTypes returns the effective grant types (defaulted when unset).
func (c *Client) GrantTypes() []oauth.GrantType {
	if len(c.Config.GrantTypes) == 0 {
		return oauth.DefaultGrantTypes
	}
	return c.Config.GrantTypes
}

// AllowsGrant reports whether the client may use the grant type.
func (c *Client) AllowsGrant(grant oauth.GrantType) bool {
	return slices.Contains(c.GrantTypes(), grant)
}

// ValidRedirect reports whether the candidate URL fully matches one of
// the configured redirect patterns.
func (c *Client) ValidRedirect(candidate string) bool {
	for _, re := range c.redirectPatterns {
		if re.MatchString(candidate) {
			return true
		}
	}
	return false
}

// HasReferrers reports whether referrer validation is configured.
func (c *Client) HasReferrers() bool {
	return len(c.referrerPatterns) > 0
}

// ValidReferrer reports whether the Referer value fully matches one of
// the configured referrer patterns.
func (c *Client) ValidReferrer(referer string) bool {
	for _, re := range c.referrerPatterns {
		if re.MatchString(referer) {
			return true
		}
	}
	return false
}

// compilePatterns anchors and compiles the redirect and referrer
// regular expressions. A pattern that does not compile fails the client.
func (c *Client) compilePatterns() error {
	compile := func(patterns []string) ([]*regexp.Regexp, error) {
		out := make([]*regexp.Regexp, 0, len(patterns))
		for _, p := range patterns {
			re, err := regexp.Compile(anchor(p))
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
			}
			out = append(out, re)
		}
		return out, nil
	}

	var err error
	if c.redirectPatterns, err = compile(c.Config.RedirectURLs); err != nil {
		return err
	}
	if c.referrerPatterns, err = compile(c.Config.Referrers); err != nil {
		return err
	}
	return nil
}

// anchor wraps a pattern so it must match the whole candidate.
func anchor(pattern string) string {
	if !strings.HasPrefix(pattern, "^") {
		pattern = "^" + pattern
	}
	if !strings.HasSuffix(pattern, "$") {
		pattern += "$"
	}
	return pattern
}

// Validate checks the client invariants that do not need the registry.
func (c *Client) Validate() error {
	if c.ID == uuid.Nil {
		return fmt.Errorf("client %q has no id", c.Name)
	}
	if c.Config.TenantName == "" {
		return fmt.Errorf("client %q references no tenant", c.Name)
	}
	if len(c.Config.RedirectURLs) == 0 {
		return fmt.Errorf("client %q declares no redirect_urls", c.Name)
	}
	return nil
}

// clientDocument is the declarative document shape.
type clientDocument struct {
	APIVersion string `json:"apiVersion,omitempty"`
	Kind       string `json:"kind"`
	Metadata   struct {
		Name string `json:"name"`
	} `json:"metadata"`
	Spec struct {
		ClientSpec
		Ident string `json:"ident"`
	} `json:"spec"`
}

// DecodeClient parses a declarative Client document, compiles its
// patterns and validates it.
func DecodeClient(ref Ref, doc []byte) (*Client, error) {
	var parsed clientDocument
	if err := yaml.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse client document: %w", err)
	}
	if parsed.Kind != "" && parsed.Kind != "Client" {
		return nil, fmt.Errorf("unexpected document kind %q, want Client", parsed.Kind)
	}

	id, err := uuid.Parse(parsed.Spec.Ident)
	if err != nil {
		return nil, fmt.Errorf("client %q has an invalid ident: %w", parsed.Metadata.Name, err)
	}

	client := &Client{
		ID:     id,
		Name:   parsed.Metadata.Name,
		Ref:    ref,
		Config: parsed.Spec.ClientSpec,
	}
	if err := client.Validate(); err != nil {
		return nil, err
	}
	if err := client.compilePatterns(); err != nil {
		return nil, fmt.Errorf("client %q: %w", parsed.Metadata.Name, err)
	}
	return client, nil
}
