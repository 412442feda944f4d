// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostMatchesWildcard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		host    string
		want    bool
	}{
		{"*.a.b", "x.a.b", true},
		{"*.a.b", "x-1.a.b", true},
		{"*.a.b", "under_score.a.b", true},
		{"*.a.b", "a.b", false},
		{"*.a.b", "x.y.a.b", false},
		{"*.a.b", "xa.b", false},
		{"*.example.com", "shop.example.com", true},
		{"*.example.com", "shop.example.org", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HostMatches(tt.pattern, tt.host),
			"pattern %q host %q", tt.pattern, tt.host)
	}
}

func TestHostMatchesLiteral(t *testing.T) {
	t.Parallel()

	assert.True(t, HostMatches("example.com", "example.com"))
	assert.True(t, HostMatches("Example.COM", "example.com"))
	assert.False(t, HostMatches("example.com", "www.example.com"))
	// Dots in literals are not regex wildcards.
	assert.False(t, HostMatches("example.com", "exampleXcom"))
}
