// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChallengeMethod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  CodeChallengeMethod
		ok    bool
	}{
		{"", ChallengeMethodNone, true},
		{"plain", ChallengeMethodPlain, true},
		{"S256", ChallengeMethodS256, true},
		{"s256", "", false},
		{"S512", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseChallengeMethod(tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
		if ok {
			assert.Equal(t, tt.want, got)
		}
	}
}

func TestVerifyChallengeS256(t *testing.T) {
	t.Parallel()

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	assert.True(t, ChallengeMethodS256.VerifyChallenge(challenge, verifier))
	assert.False(t, ChallengeMethodS256.VerifyChallenge(challenge, "wrong-verifier"))

	// Padding must be stripped; a padded challenge never matches.
	padded := base64.URLEncoding.EncodeToString(sum[:])
	if padded != challenge {
		assert.False(t, ChallengeMethodS256.VerifyChallenge(padded, verifier))
	}
}

func TestVerifyChallengePlainAndNone(t *testing.T) {
	t.Parallel()

	assert.True(t, ChallengeMethodPlain.VerifyChallenge("abc", "abc"))
	assert.False(t, ChallengeMethodPlain.VerifyChallenge("abc", "abd"))
	assert.True(t, ChallengeMethodNone.VerifyChallenge("", "anything"))
}

func TestParseAuthRequest(t *testing.T) {
	t.Parallel()

	t.Run("insecure variant", func(t *testing.T) {
		t.Parallel()
		q := url.Values{
			"response_type": {"code"},
			"client_id":     {"ab2c4a6e-1f2f-4c3d-9c7e-6f5e4d3c2b1a"},
			"redirect_uri":  {"https://app.example.com/cb"},
			"scope":         {"read write"},
			"state":         {"xyz"},
		}
		req, oerr := ParseAuthRequest(q)
		require.Nil(t, oerr)
		assert.Equal(t, ChallengeMethodNone, req.CodeChallengeMethod)
		assert.Empty(t, req.CodeChallenge)
		assert.Equal(t, []string{"read", "write"}, req.Scopes)
		assert.Equal(t, "xyz", req.State)
	})

	t.Run("S256 requires challenge", func(t *testing.T) {
		t.Parallel()
		q := url.Values{"code_challenge_method": {"S256"}}
		_, oerr := ParseAuthRequest(q)
		require.NotNil(t, oerr)
		assert.Equal(t, 400, oerr.Status)
		assert.Equal(t, ErrorCodeChallengeMissing, oerr.Code)
	})

	t.Run("unknown method rejected", func(t *testing.T) {
		t.Parallel()
		q := url.Values{"code_challenge_method": {"S999"}}
		_, oerr := ParseAuthRequest(q)
		require.NotNil(t, oerr)
		assert.Equal(t, ErrorCodeChallengeMethod, oerr.Code)
	})
}

func TestIntersectScopes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"read"}, IntersectScopes([]string{"read", "admin"}, []string{"read", "write"}))
	assert.Empty(t, IntersectScopes([]string{"admin"}, []string{"read"}))
	assert.Empty(t, IntersectScopes(nil, []string{"read"}))
	// Duplicates collapse, order follows the request.
	assert.Equal(t, []string{"write", "read"},
		IntersectScopes([]string{"write", "read", "write"}, []string{"read", "write"}))
}

func TestSplitScopes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"openid", "profile"}, SplitScopes("openid profile"))
	assert.Empty(t, SplitScopes(""))
	assert.Equal(t, []string{"a"}, SplitScopes("  a "))
}

func TestResponsibilityHashIsStable(t *testing.T) {
	t.Parallel()

	a := ResponsibilityHash(".example.com")
	b := ResponsibilityHash(".EXAMPLE.com")
	c := ResponsibilityHash(".example.org")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
