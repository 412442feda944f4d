// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the process-wide settings for the authorization
// server. Values are read from the environment through viper; CLI flags
// bound by the serve command override them.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Mode is the runtime environment the server was started for.
type Mode string

// Supported runtime modes.
const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// Defaults applied when the environment leaves a knob unset.
const (
	DefaultTokenExpiration  = 1 * time.Hour
	DefaultAuthCodeTTL      = 10 * time.Minute
	DefaultRefreshTokenTTL  = 30 * 24 * time.Hour
	DefaultLoginSessionTTL  = 2 * time.Minute
	DefaultScriptTimeout    = 3 * time.Second
	DefaultRedisTimeout     = 5 * time.Second
	DefaultCookieName       = "uitsmijter-sso"
	DefaultInterceptorFlag  = "X-Uitsmijter-Mode"
	DefaultResourcesRoot    = "/app/Resources/Configurations"
	DefaultViewRoot         = "/app/Resources/Views"
	DefaultMetricsNamespace = "uitsmijter"
)

// Settings is the resolved configuration of a server process.
type Settings struct {
	// Environment is the runtime mode the serve command was started with.
	Environment Mode

	// Hostname and Port are the listen address.
	Hostname string
	Port     int

	// Secure marks the deployment as TLS-terminated; it controls the
	// default request scheme and the Secure cookie attribute.
	Secure bool

	// DefaultHost is used when a request carries no Host header and no
	// tenant is configured.
	DefaultHost string

	// JWTSecret is the process-wide HS256 secret. Empty means a fresh
	// random secret is generated at startup.
	JWTSecret string

	// RedisHost enables the Redis code-store backend when non-empty.
	RedisHost     string
	RedisPassword string

	// SupportKubernetesCRD enables the control-plane entity source.
	SupportKubernetesCRD bool

	// ScopedKubernetesCRD restricts the CRD watch to Namespace.
	ScopedKubernetesCRD bool
	Namespace           string

	// ResourcesRoot is the directory watched by the file entity source.
	ResourcesRoot string

	// ViewRoot is where per-tenant templates are materialized.
	ViewRoot string

	// Token lifetimes.
	TokenExpiration time.Duration
	AuthCodeTTL     time.Duration
	RefreshTTL      time.Duration
	LoginSessionTTL time.Duration

	// ScriptTimeout bounds a single provider-script commit wait.
	ScriptTimeout time.Duration

	// CookieName is the browser session cookie name.
	CookieName string

	// InterceptorHeader is the request header that switches a request
	// into interceptor mode when it carries the value "interceptor".
	InterceptorHeader string

	// DisplayVersion exposes GET /versions when true.
	DisplayVersion bool

	// Metrics exposes GET /metrics when true.
	Metrics bool
}

// IsProduction reports whether the server runs in production mode.
func (s *Settings) IsProduction() bool {
	return s.Environment == ModeProduction
}

func init() {
	for _, key := range []string{
		"LOG_LEVEL", "LOG_FORMAT", "JWT_SECRET",
		"REDIS_HOST", "REDIS_PASSWORD",
		"SECURE", "SUPPORT_KUBERNETES_CRD", "SCOPED_KUBERNETES_CRD",
		"NAMESPACE", "RESOURCES_ROOT", "VIEW_ROOT",
		"TOKEN_EXPIRATION_HOURS", "AUTHCODE_TTL_SECONDS",
		"REFRESH_TTL_SECONDS", "SCRIPT_TIMEOUT_SECONDS",
		"DISPLAY_VERSION", "METRICS", "DEFAULT_HOST",
	} {
		_ = viper.BindEnv(key)
	}
	viper.SetDefault("RESOURCES_ROOT", DefaultResourcesRoot)
	viper.SetDefault("VIEW_ROOT", DefaultViewRoot)
	viper.SetDefault("NAMESPACE", "default")
}

// Load resolves the settings from the environment. The environment name
// comes from the serve command's --env flag.
func Load(environment string) *Settings {
	mode := ModeDevelopment
	if Mode(environment) == ModeProduction {
		mode = ModeProduction
	}

	return &Settings{
		Environment:          mode,
		Secure:               viper.GetBool("SECURE"),
		DefaultHost:          viper.GetString("DEFAULT_HOST"),
		JWTSecret:            viper.GetString("JWT_SECRET"),
		RedisHost:            viper.GetString("REDIS_HOST"),
		RedisPassword:        viper.GetString("REDIS_PASSWORD"),
		SupportKubernetesCRD: viper.GetBool("SUPPORT_KUBERNETES_CRD"),
		ScopedKubernetesCRD:  viper.GetBool("SCOPED_KUBERNETES_CRD"),
		Namespace:            viper.GetString("NAMESPACE"),
		ResourcesRoot:        viper.GetString("RESOURCES_ROOT"),
		ViewRoot:             viper.GetString("VIEW_ROOT"),
		TokenExpiration:      durationOrDefault("TOKEN_EXPIRATION_HOURS", time.Hour, DefaultTokenExpiration),
		AuthCodeTTL:          durationOrDefault("AUTHCODE_TTL_SECONDS", time.Second, DefaultAuthCodeTTL),
		RefreshTTL:           durationOrDefault("REFRESH_TTL_SECONDS", time.Second, DefaultRefreshTokenTTL),
		LoginSessionTTL:      DefaultLoginSessionTTL,
		ScriptTimeout:        durationOrDefault("SCRIPT_TIMEOUT_SECONDS", time.Second, DefaultScriptTimeout),
		CookieName:           DefaultCookieName,
		InterceptorHeader:    DefaultInterceptorFlag,
		DisplayVersion:       viper.GetBool("DISPLAY_VERSION"),
		Metrics:              viper.GetBool("METRICS"),
	}
}

// durationOrDefault converts an integer environment value into a
// duration with the given unit, falling back when unset or non-positive.
func durationOrDefault(key string, unit, fallback time.Duration) time.Duration {
	n := viper.GetInt64(key)
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * unit
}
