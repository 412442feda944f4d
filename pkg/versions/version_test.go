// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package versions

import (
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfo(t *testing.T) {
	origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
	t.Cleanup(func() {
		Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
	})

	t.Run("release version", func(t *testing.T) {
		Version = "v1.2.3"
		Commit = "abc123def456789"
		BuildDate = "2026-01-15T10:30:00Z"

		got := GetVersionInfo()
		assert.Equal(t, "v1.2.3", got.Version)
		assert.Equal(t, "abc123def456789", got.Commit)
		assert.Equal(t, "2026-01-15 10:30:00 UTC", got.BuildDate)
		assert.Equal(t, runtime.Version(), got.GoVersion)
		assert.Equal(t, fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH), got.Platform)
	})

	t.Run("dev build takes short commit", func(t *testing.T) {
		Version = "dev"
		Commit = "abc123def456789"
		BuildDate = unknownStr

		got := GetVersionInfo()
		assert.Equal(t, "build-abc123de", got.Version)
		assert.Equal(t, "abc123def456789", got.Commit)
	})

	t.Run("dev build without commit", func(t *testing.T) {
		Version = "dev"
		Commit = unknownStr
		BuildDate = unknownStr

		got := GetVersionInfo()
		assert.True(t, strings.HasPrefix(got.Version, "build-"))
	})

	t.Run("unparseable build date kept verbatim", func(t *testing.T) {
		Version = "v2.0.0"
		Commit = "def456"
		BuildDate = "not-a-date"

		got := GetVersionInfo()
		assert.Equal(t, "not-a-date", got.BuildDate)
	})
}
