// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package oauth holds the protocol-level types shared by the
// authorization pipeline: grant types, PKCE challenge methods, the
// token payload, scope handling and the localized error surface.
package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// GrantType is an OAuth 2.0 grant type as sent in the token request.
type GrantType string

// Grant types supported by the token endpoint.
const (
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	GrantTypeRefreshToken      GrantType = "refresh_token"
	GrantTypePassword          GrantType = "password"
	GrantTypeClientCredentials GrantType = "client_credentials"
)

// DefaultGrantTypes are granted to clients that do not declare any.
var DefaultGrantTypes = []GrantType{GrantTypeAuthorizationCode, GrantTypeRefreshToken}

// ResponseTypeCode is the only supported authorization response type.
const ResponseTypeCode = "code"

// CodeChallengeMethod is a PKCE challenge method (RFC 7636).
type CodeChallengeMethod string

// Supported code challenge methods.
const (
	ChallengeMethodNone  CodeChallengeMethod = "none"
	ChallengeMethodPlain CodeChallengeMethod = "plain"
	ChallengeMethodS256  CodeChallengeMethod = "S256"
)

// ParseChallengeMethod maps the query value onto a known method.
// An absent value means the insecure variant of the auth request.
func ParseChallengeMethod(value string) (CodeChallengeMethod, bool) {
	switch value {
	case "":
		return ChallengeMethodNone, true
	case string(ChallengeMethodPlain):
		return ChallengeMethodPlain, true
	case string(ChallengeMethodS256):
		return ChallengeMethodS256, true
	default:
		return "", false
	}
}

// VerifyChallenge reports whether the verifier satisfies the stored
// challenge under this method. For S256 the challenge is the
// base64url-without-padding SHA-256 of the verifier; for plain it is the
// literal verifier. The none method always verifies.
func (m CodeChallengeMethod) VerifyChallenge(challenge, verifier string) bool {
	switch m {
	case ChallengeMethodNone:
		return true
	case ChallengeMethodPlain:
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(verifier)) == 1
	case ChallengeMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(computed)) == 1
	default:
		return false
	}
}

// TokenPayload is the claim set minted into access and refresh tokens.
// It carries the subject, the owning tenant and the profile the login
// provider committed for the user.
type TokenPayload struct {
	jwt.RegisteredClaims

	// Tenant is the name of the tenant the token was issued for. A token
	// whose tenant claim does not match the resolved tenant is invalid.
	Tenant string `json:"tenant"`

	// Role is the role the login provider assigned to the user.
	Role string `json:"role,omitempty"`

	// User is the login name the user authenticated with.
	User string `json:"user,omitempty"`

	// Profile is the free-form user profile from the login provider.
	Profile map[string]any `json:"profile,omitempty"`

	// Responsibility binds the token to the cookie-scope domain so a
	// token stolen from one domain cannot be reused on another.
	Responsibility string `json:"responsibility,omitempty"`
}

// ResponsibilityHash returns the stable digest of a responsible domain
// as bound into interceptor-mode tokens.
func ResponsibilityHash(domain string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(domain)))
	return hex.EncodeToString(sum[:])
}

// AuthRequest is a decoded GET /authorize request. The PKCE fields are
// empty for the insecure variant.
type AuthRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scopes              []string
	State               string
	CodeChallenge       string
	CodeChallengeMethod CodeChallengeMethod
	LoginID             string
}

// ParseAuthRequest decodes the authorize query parameters. S256 requires
// a non-empty code_challenge; an unknown method is rejected.
func ParseAuthRequest(q url.Values) (*AuthRequest, *Error) {
	method, ok := ParseChallengeMethod(q.Get("code_challenge_method"))
	if !ok {
		return nil, BadRequest(ErrorCodeChallengeMethod)
	}

	challenge := q.Get("code_challenge")
	if method == ChallengeMethodS256 && challenge == "" {
		return nil, BadRequest(ErrorCodeChallengeMissing)
	}
	if method == ChallengeMethodNone {
		challenge = ""
	}

	return &AuthRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scopes:              SplitScopes(q.Get("scope")),
		State:               q.Get("state"),
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		LoginID:             q.Get("loginid"),
	}, nil
}

// TokenResponse is the success body of the token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// TokenTypeBearer is the only issued token type.
const TokenTypeBearer = "Bearer"

// SplitScopes splits a space-separated scope string, dropping empties.
func SplitScopes(scope string) []string {
	return slices.DeleteFunc(strings.Split(scope, " "), func(s string) bool {
		return s == ""
	})
}

// JoinScopes renders a scope list as the space-separated wire form.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// IntersectScopes returns the requested scopes that appear in the
// client's whitelist, in request order. An empty whitelist grants
// nothing beyond an empty set; an empty request yields the empty set.
func IntersectScopes(requested, allowed []string) []string {
	granted := make([]string, 0, len(requested))
	for _, s := range requested {
		if slices.Contains(allowed, s) && !slices.Contains(granted, s) {
			granted = append(granted, s)
		}
	}
	return granted
}

// BearerToken extracts the bearer token from an Authorization header,
// returning "" if the header is absent or not a bearer scheme.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}
