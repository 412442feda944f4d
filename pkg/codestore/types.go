// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package codestore holds the TTL-indexed authorization-code and
// login-session store with pluggable backends: an in-memory map with a
// background sweep, and Redis for horizontally scaled deployments.
package codestore

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/uitsmijter/uitsmijter/pkg/oauth"
)

// Kind distinguishes the two session families sharing one store.
type Kind string

// Session kinds.
const (
	KindCode    Kind = "code"
	KindRefresh Kind = "refresh"
)

// Sentinel errors of the store contract.
var (
	// ErrCodeTaken is returned by Put when the (kind, value) pair
	// already exists.
	ErrCodeTaken = errors.New("code already taken")
)

// AuthSession is the record of an in-flight or completed authorization.
type AuthSession struct {
	// Kind is code or refresh.
	Kind Kind `json:"type"`

	// Code is the opaque session value (the auth code or refresh token).
	Code string `json:"code"`

	// State is echoed back to the client on redirect.
	State string `json:"state,omitempty"`

	// Scopes is the final granted scope set.
	Scopes []string `json:"scopes,omitempty"`

	// Payload holds the claims minted into tokens for this session.
	Payload oauth.TokenPayload `json:"payload"`

	// Redirect is the validated absolute redirect URL.
	Redirect string `json:"redirect,omitempty"`

	// PKCEChallenge and PKCEMethod bind the code to its verifier.
	PKCEChallenge string                    `json:"code_challenge,omitempty"`
	PKCEMethod    oauth.CodeChallengeMethod `json:"code_challenge_method,omitempty"`

	// TTLSeconds is the session lifetime. Must be positive.
	TTLSeconds int64 `json:"ttl"`

	// CreatedAt is when the session was stored.
	CreatedAt time.Time `json:"created_at"`
}

// TTL returns the session lifetime as a duration.
func (s *AuthSession) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// ExpiresAt returns the instant after which the session is unreachable.
func (s *AuthSession) ExpiresAt() time.Time {
	return s.CreatedAt.Add(s.TTL())
}

// Expired reports whether the session is past its TTL at the instant.
func (s *AuthSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt())
}

// LoginSession bridges a successful login and the ensuing authorize
// call. It is single-use: pulling it succeeds at most once.
type LoginSession struct {
	// LoginID is handed to the browser as the loginid query parameter.
	LoginID uuid.UUID `json:"login_id"`

	// TTLSeconds defaults to 120.
	TTLSeconds int64 `json:"ttl"`

	// CreatedAt is when the session was pushed.
	CreatedAt time.Time `json:"created_at"`
}

// DefaultLoginSessionTTLSeconds is the login-session lifetime.
const DefaultLoginSessionTTLSeconds = 120

// NewLoginSession creates a login session with the default TTL.
func NewLoginSession() *LoginSession {
	return &LoginSession{
		LoginID:    uuid.New(),
		TTLSeconds: DefaultLoginSessionTTLSeconds,
		CreatedAt:  time.Now(),
	}
}

// Expired reports whether the login session is past its TTL.
func (l *LoginSession) Expired(now time.Time) bool {
	return !now.Before(l.CreatedAt.Add(time.Duration(l.TTLSeconds) * time.Second))
}

// Store is the code-store contract both backends implement. Operations
// against a single (kind, value) key are serialized: put-then-get
// observes the put, remove-then-get returns nothing.
type Store interface {
	// Put stores a session. Fails with ErrCodeTaken when the
	// (kind, value) pair already exists.
	Put(ctx context.Context, session *AuthSession) error

	// Get fetches a session, optionally removing it atomically.
	// Returns (nil, nil) when absent or expired.
	Get(ctx context.Context, kind Kind, value string, remove bool) (*AuthSession, error)

	// Count returns the number of live auth sessions.
	Count(ctx context.Context) (int, error)

	// Delete removes a session if present.
	Delete(ctx context.Context, kind Kind, value string) error

	// Wipe revokes all sessions whose payload matches the tenant and
	// subject. Backends may run this in the background.
	Wipe(ctx context.Context, tenant, subject string) error

	// Push stores a login session.
	Push(ctx context.Context, login *LoginSession) error

	// Pull removes a login session, reporting whether it was present.
	// Exactly-once: a pulled login id is gone.
	Pull(ctx context.Context, loginID uuid.UUID) bool

	// Healthy reports whether the backend is reachable.
	Healthy(ctx context.Context) bool

	// Close releases backend resources.
	Close() error
}

// codeAlphabet is the RFC 3986 unreserved alphabet used for generated
// codes and refresh tokens.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// CodeLength is the length of generated codes.
const CodeLength = 48

// GenerateCode returns a random token from the unreserved alphabet.
func GenerateCode() string {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, CodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand never fails on supported platforms.
			panic(err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf)
}

// storageKey renders the backend key for a session.
func storageKey(kind Kind, value string) string {
	return string(kind) + "~" + value
}
