// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenantYAML = `
apiVersion: "uitsmijter.io/v1"
kind: Tenant
metadata:
  name: shire
spec:
  hosts:
    - shire.example.com
    - "*.shire.example.com"
  silent_login: false
  interceptor:
    enabled: true
    domain: login.shire.example.com
    cookie: .shire.example.com
  informations:
    imprint_url: https://shire.example.com/imprint
    privacy_url: https://shire.example.com/privacy
  providers:
    - |
      UserLoginProvider = {}
      function UserLoginProvider.new(credentials)
        commit(true)
        return { canLogin = true }
      end
`

const clientYAML = `
apiVersion: "uitsmijter.io/v1"
kind: Client
metadata:
  name: shop
spec:
  ident: 1F8BF129-EDE5-4AF7-8E41-6E9E9E2B4A1D
  tenantname: shire
  redirect_urls:
    - https://shop\.example\.(com|org)/.*
  scopes:
    - read
    - write
  referrers:
    - https://shop\.example\.com/.*
  isPkceOnly: true
`

func TestDecodeTenant(t *testing.T) {
	t.Parallel()

	tenant, err := DecodeTenant(FileRef{Path: "/t.yaml"}, []byte(tenantYAML))
	require.NoError(t, err)

	assert.Equal(t, "shire", tenant.Name)
	assert.Len(t, tenant.Config.Hosts, 2)
	assert.False(t, tenant.SilentLogin())
	assert.True(t, tenant.InterceptorEnabled())
	assert.Equal(t, "login.shire.example.com", tenant.LoginDomain())
	assert.Equal(t, ".shire.example.com", tenant.CookieDomain())
	require.Len(t, tenant.Config.ProviderScripts, 1)
	assert.Contains(t, tenant.Config.ProviderScripts[0], "UserLoginProvider")
	require.NotNil(t, tenant.Config.Informations)
	assert.Equal(t, "https://shire.example.com/privacy", tenant.Config.Informations.PrivacyURL)
}

func TestDecodeTenantDefaults(t *testing.T) {
	t.Parallel()

	tenant, err := DecodeTenant(FileRef{Path: "/t.yaml"}, []byte(`
kind: Tenant
metadata:
  name: plain
spec:
  hosts: [plain.test]
`))
	require.NoError(t, err)
	assert.True(t, tenant.SilentLogin(), "silent_login defaults to true")
	assert.False(t, tenant.InterceptorEnabled())
	assert.Zero(t, tenant.Informations(), "informations is optional")
}

func TestDecodeTenantRejectsBadDocuments(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"wrong kind":   "kind: Client\nmetadata:\n  name: x\nspec:\n  hosts: [a.test]\n",
		"invalid slug": "kind: Tenant\nmetadata:\n  name: Not A Slug\nspec:\n  hosts: [a.test]\n",
		"no hosts":     "kind: Tenant\nmetadata:\n  name: empty\nspec: {}\n",
		"not yaml":     "{{{",
	}
	for name, doc := range cases {
		_, err := DecodeTenant(FileRef{Path: "/t.yaml"}, []byte(doc))
		assert.Error(t, err, name)
	}
}

func TestDecodeClient(t *testing.T) {
	t.Parallel()

	client, err := DecodeClient(FileRef{Path: "/c.yaml"}, []byte(clientYAML))
	require.NoError(t, err)

	assert.Equal(t, "1f8bf129-ede5-4af7-8e41-6e9e9e2b4a1d", client.ID.String())
	assert.Equal(t, "shire", client.Config.TenantName)
	assert.True(t, client.Config.PKCEOnly)
	assert.ElementsMatch(t, []string{"read", "write"}, client.Config.Scopes)

	assert.True(t, client.ValidRedirect("https://shop.example.com/callback"))
	assert.True(t, client.ValidRedirect("https://shop.example.org/cb"))
	assert.False(t, client.ValidRedirect("https://evil.com/"))
	// Anchored: a match embedded in a longer URL is not enough.
	assert.False(t, client.ValidRedirect("https://evil.com/?u=https://shop.example.com/cb"))

	assert.True(t, client.HasReferrers())
	assert.True(t, client.ValidReferrer("https://shop.example.com/start"))
	assert.False(t, client.ValidReferrer("https://elsewhere.example.com/"))
}

func TestDecodeClientDefaults(t *testing.T) {
	t.Parallel()

	client, err := DecodeClient(nil, []byte(`
kind: Client
metadata:
  name: minimal
spec:
  ident: 7c9e6679-7425-40de-944b-e07fc1f90ae7
  tenantname: shire
  redirect_urls: [".*"]
`))
	require.NoError(t, err)

	assert.ElementsMatch(t, DefaultGrantTypesAsStrings(), grantsAsStrings(client))
	assert.False(t, client.HasReferrers())
	assert.False(t, client.Config.PKCEOnly)
}

func grantsAsStrings(c *Client) []string {
	out := make([]string, 0, len(c.GrantTypes()))
	for _, g := range c.GrantTypes() {
		out = append(out, string(g))
	}
	return out
}

// DefaultGrantTypesAsStrings mirrors the package default for assertions.
func DefaultGrantTypesAsStrings() []string {
	return []string{"authorization_code", "refresh_token"}
}

func TestDecodeClientRejectsBadDocuments(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bad uuid":     "kind: Client\nmetadata:\n  name: x\nspec:\n  ident: nope\n  tenantname: t\n  redirect_urls: ['.*']\n",
		"no tenant":    "kind: Client\nmetadata:\n  name: x\nspec:\n  ident: 7c9e6679-7425-40de-944b-e07fc1f90ae7\n  redirect_urls: ['.*']\n",
		"no redirects": "kind: Client\nmetadata:\n  name: x\nspec:\n  ident: 7c9e6679-7425-40de-944b-e07fc1f90ae7\n  tenantname: t\n",
		"bad regex":    "kind: Client\nmetadata:\n  name: x\nspec:\n  ident: 7c9e6679-7425-40de-944b-e07fc1f90ae7\n  tenantname: t\n  redirect_urls: ['[']\n",
	}
	for name, doc := range cases {
		_, err := DecodeClient(nil, []byte(doc))
		assert.Error(t, err, name)
	}
}
