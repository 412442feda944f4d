// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package entities

import (
	"regexp"
	"strings"
)

// wildcardLabel is what a single "*" in a host pattern may match:
// exactly one DNS label of letters, digits, underscores and dashes.
const wildcardLabel = `[A-Za-z0-9_-]+`

// compileHostPattern turns a configured host into an anchored regular
// expression. Literal parts are escaped; each "*" matches one label.
func compileHostPattern(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile("^" + strings.Join(parts, wildcardLabel) + "$")
}

// HostMatches reports whether a configured host pattern matches the
// request host. Patterns without a "*" compare case-insensitively as
// literals; "*.a.b" matches "x.a.b" but neither "a.b" nor "x.y.a.b".
func HostMatches(pattern, host string) bool {
	pattern = strings.ToLower(pattern)
	host = strings.ToLower(host)
	if !strings.Contains(pattern, "*") {
		return pattern == host
	}
	re, err := compileHostPattern(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(host)
}
