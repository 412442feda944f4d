// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"fmt"
	"net/http"
)

// Localization keys carried by user-visible errors. The keys are part of
// the public surface: HTML error pages and JSON error bodies emit them
// verbatim and the frontend translates them.
const (
	ErrorNoTenant             = "LOGIN.ERRORS.NO_TENANT"
	ErrorNoClient             = "LOGIN.ERRORS.NO_CLIENT"
	ErrorRedirectMismatch     = "LOGIN.ERRORS.REDIRECT_MISMATCH"
	ErrorWrongReferer         = "LOGIN.ERRORS.WRONG_REFERER"
	ErrorBadLoginID           = "LOGIN.ERRORS.BAD_LOGIN_ID"
	ErrorInvalidUsername      = "LOGIN.ERRORS.INVALID_USERNAME"
	ErrorInvalidCredentials   = "LOGIN.ERRORS.INVALID_CREDENTIALS"
	ErrorNoLoginProvider      = "LOGIN.ERRORS.NO_LOGIN_PROVIDER"
	ErrorWrongTenant          = "LOGIN.ERRORS.WRONG_TENANT"
	ErrorPKCERequired         = "LOGIN.ERRORS.PKCE_REQUIRED"
	ErrorWrongClientSecret    = "LOGIN.ERRORS.WRONG_CLIENT_SECRET"
	ErrorCodeChallengeMethod  = "LOGIN.ERRORS.UNSUPPORTED_CODE_CHALLENGE_METHOD"
	ErrorCodeChallengeMissing = "LOGIN.ERRORS.MISSING_CODE_CHALLENGE"
	ErrorInvalidGrant         = "TOKEN.ERRORS.INVALID_GRANT"
	ErrorUnsupportedGrant     = "TOKEN.ERRORS.UNSUPPORTED_GRANT_TYPE"
	ErrorInvalidVerifier      = "TOKEN.ERRORS.INVALID_CODE_VERIFIER"
	ErrorForbidden            = "ERRORS.FORBIDDEN"
	ErrorUnauthorized         = "ERRORS.UNAUTHORIZED"
	ErrorBadRequest           = "ERRORS.BAD_REQUEST"
	ErrorInternal             = "ERRORS.INTERNAL"
	ErrorDependency           = "ERRORS.DEPENDENCY_UNAVAILABLE"
)

// Error is a domain error that maps onto an HTTP status and a localized
// reason code. It never carries implementation detail to the user.
type Error struct {
	// Status is the HTTP status the error renders with.
	Status int

	// Code is the localization key, e.g. LOGIN.ERRORS.REDIRECT_MISMATCH.
	Code string

	// cause is kept for logs only, never rendered.
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%d): %v", e.Code, e.Status, e.cause)
	}
	return fmt.Sprintf("%s (%d)", e.Code, e.Status)
}

// Unwrap exposes the internal cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause attaches an internal cause for logging.
func (e *Error) WithCause(err error) *Error {
	return &Error{Status: e.Status, Code: e.Code, cause: err}
}

// BadRequest builds a 400 error with the given reason code.
func BadRequest(code string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: code}
}

// Unauthorized builds a 401 error with the given reason code.
func Unauthorized(code string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: code}
}

// Forbidden builds a 403 error with the given reason code.
func Forbidden(code string) *Error {
	return &Error{Status: http.StatusForbidden, Code: code}
}

// NotFound builds a 404 error with the given reason code.
func NotFound(code string) *Error {
	return &Error{Status: http.StatusNotFound, Code: code}
}

// Internal builds a 500 error. The cause is logged, never rendered.
func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: ErrorInternal, cause: err}
}

// Dependency builds a 503 error for unreachable collaborators.
func Dependency(err error) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Code: ErrorDependency, cause: err}
}
