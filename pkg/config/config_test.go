// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s := Load("development")
	require.NotNil(t, s)

	assert.Equal(t, ModeDevelopment, s.Environment)
	assert.False(t, s.IsProduction())
	assert.Equal(t, DefaultTokenExpiration, s.TokenExpiration)
	assert.Equal(t, DefaultAuthCodeTTL, s.AuthCodeTTL)
	assert.Equal(t, DefaultRefreshTokenTTL, s.RefreshTTL)
	assert.Equal(t, DefaultScriptTimeout, s.ScriptTimeout)
	assert.Equal(t, DefaultCookieName, s.CookieName)
	assert.Equal(t, DefaultInterceptorFlag, s.InterceptorHeader)
}

func TestLoadProductionMode(t *testing.T) {
	s := Load("production")
	assert.Equal(t, ModeProduction, s.Environment)
	assert.True(t, s.IsProduction())

	// Anything that is not "production" is development.
	assert.Equal(t, ModeDevelopment, Load("staging").Environment)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "super-secret")
	t.Setenv("REDIS_HOST", "redis.internal:6379")
	t.Setenv("TOKEN_EXPIRATION_HOURS", "2")
	t.Setenv("AUTHCODE_TTL_SECONDS", "300")

	s := Load("production")
	assert.Equal(t, "super-secret", s.JWTSecret)
	assert.Equal(t, "redis.internal:6379", s.RedisHost)
	assert.Equal(t, 2*time.Hour, s.TokenExpiration)
	assert.Equal(t, 5*time.Minute, s.AuthCodeTTL)
}

func TestDurationOrDefault(t *testing.T) {
	viper.Set("TEST_DURATION", 0)
	assert.Equal(t, time.Minute, durationOrDefault("TEST_DURATION", time.Second, time.Minute))

	viper.Set("TEST_DURATION", 42)
	assert.Equal(t, 42*time.Second, durationOrDefault("TEST_DURATION", time.Second, time.Minute))
}
