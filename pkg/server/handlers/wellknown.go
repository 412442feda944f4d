// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"sort"

	"github.com/uitsmijter/uitsmijter/pkg/oauth"
	"github.com/uitsmijter/uitsmijter/pkg/server/requestcontext"
)

// discoveryCacheControl caches the discovery documents for one hour.
const discoveryCacheControl = "public, max-age=3600"

// discoveryDocument is the OpenID Connect provider metadata.
type discoveryDocument struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint"`
	JWKSURI                          string   `json:"jwks_uri"`
	ScopesSupported                  []string `json:"scopes_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	CodeChallengeMethodsSupported    []string `json:"code_challenge_methods_supported"`
	OpPolicyURI                      string   `json:"op_policy_uri,omitempty"`
	ServiceDocumentation             string   `json:"service_documentation,omitempty"`
}

// Discovery renders the per-tenant OpenID Connect configuration.
func (h *Handlers) Discovery(w http.ResponseWriter, r *http.Request) {
	info := requestcontext.FromRequest(r)
	tenant := info.Tenant
	if tenant == nil {
		h.fail(w, r, oauth.BadRequest(oauth.ErrorNoTenant))
		return
	}

	issuer := info.ServiceURL()
	infos := tenant.Informations()

	// Scopes are the union over the tenant's clients plus the OIDC
	// baseline; grants likewise always carry the code flow pair.
	scopes := map[string]bool{"openid": true, "profile": true, "email": true}
	grants := map[string]bool{
		string(oauth.GrantTypeAuthorizationCode): true,
		string(oauth.GrantTypeRefreshToken):      true,
	}
	for _, client := range h.store.ClientsForTenant(tenant.Name) {
		for _, scope := range client.Config.Scopes {
			scopes[scope] = true
		}
		for _, grant := range client.GrantTypes() {
			grants[string(grant)] = true
		}
	}

	doc := discoveryDocument{
		Issuer:                           issuer,
		AuthorizationEndpoint:            issuer + "/authorize",
		TokenEndpoint:                    issuer + "/token",
		UserinfoEndpoint:                 issuer + "/token/info",
		JWKSURI:                          issuer + "/.well-known/jwks.json",
		ScopesSupported:                  sortedKeys(scopes),
		GrantTypesSupported:              sortedKeys(grants),
		ResponseTypesSupported:           []string{oauth.ResponseTypeCode},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
		CodeChallengeMethodsSupported: []string{
			string(oauth.ChallengeMethodS256),
			string(oauth.ChallengeMethodPlain),
		},
		OpPolicyURI:          infos.PrivacyURL,
		ServiceDocumentation: infos.ImprintURL,
	}

	w.Header().Set("Cache-Control", discoveryCacheControl)
	writeJSON(w, http.StatusOK, doc)
}

// JWKS serves the public key set, generating an active key when the
// set is empty so the document is never empty.
func (h *Handlers) JWKS(w http.ResponseWriter, r *http.Request) {
	set, err := h.signer.PublicKeySet()
	if err != nil {
		h.fail(w, r, oauth.Internal(err))
		return
	}
	w.Header().Set("Cache-Control", discoveryCacheControl)
	writeJSON(w, http.StatusOK, set)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
