// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package signer implements JWT signing and verification for the
// authorization server: HS256 with a process-wide symmetric secret and
// RS256 with rotating RSA-2048 key pairs exported as a JWKS.
package signer

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/uitsmijter/uitsmijter/pkg/logger"
	"github.com/uitsmijter/uitsmijter/pkg/oauth"
)

// Algorithm selects the signing algorithm for a token.
type Algorithm string

// Supported algorithms. HS256 tokens carry no kid header; RS256 tokens
// carry the kid of the active key.
const (
	AlgHS256 Algorithm = "HS256"
	AlgRS256 Algorithm = "RS256"
)

// rsaKeySize is the modulus size of generated signing keys.
const rsaKeySize = 2048

// Sentinel errors of the verification surface.
var (
	// ErrInvalidToken is returned when a token fails verification for
	// any reason other than expiry. Callers treat the request as
	// anonymous.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpired is returned together with the decoded payload when a
	// token verified structurally but its exp is in the past.
	ErrExpired = errors.New("token expired")
)

// RSAKeyRecord is one entry of the rotating key set.
type RSAKeyRecord struct {
	// KID identifies the key in JWT headers and the JWKS.
	KID string

	// Key is the private key. The public half is exported via JWKS.
	Key *rsa.PrivateKey

	// CreatedAt is when the key was generated.
	CreatedAt time.Time

	// Active marks the single key used for signing new tokens.
	Active bool
}

// Signer holds the symmetric secret and the rotating RSA key set behind
// a single mutex.
type Signer struct {
	mu     sync.Mutex
	secret []byte
	keys   []*RSAKeyRecord

	// now is injectable for tests.
	now func() time.Time
}

// New creates a signer. An empty secret means a fresh random secret is
// generated at startup, which invalidates HS256 tokens across restarts.
func New(secret string) *Signer {
	s := &Signer{now: time.Now}
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand never fails on supported platforms.
			logger.Fatalf("failed to generate JWT secret: %v", err)
		}
		logger.Warn("JWT_SECRET is not set, generated a random secret; tokens will be invalid after restart")
		s.secret = buf
		return s
	}
	s.secret = []byte(secret)
	return s
}

// kidForDate renders a key id from a point in time: the UTC ISO date.
func kidForDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ActiveSigningKey returns the active RSA key, generating one lazily
// when the set is empty. Generation atomically deactivates all others.
func (s *Signer) ActiveSigningKey() (*RSAKeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSigningKeyLocked()
}

func (s *Signer) activeSigningKeyLocked() (*RSAKeyRecord, error) {
	for _, rec := range s.keys {
		if rec.Active {
			return rec, nil
		}
	}
	return s.generateLocked(kidForDate(s.now()))
}

// generateLocked creates a fresh active key pair under the given kid,
// deactivating every other key. A key holding the same kid is replaced.
func (s *Signer) generateLocked(kid string) (*RSAKeyRecord, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	rec := &RSAKeyRecord{
		KID:       kid,
		Key:       key,
		CreatedAt: s.now().UTC(),
		Active:    true,
	}

	kept := s.keys[:0]
	for _, existing := range s.keys {
		if existing.KID == kid {
			continue
		}
		existing.Active = false
		kept = append(kept, existing)
	}
	s.keys = append(kept, rec)

	logger.Infow("generated new signing key", "kid", kid)
	return rec, nil
}

// Rotate generates a new active key under the kid derived from the
// given date and returns that kid. Previously active keys stay in the
// set for verification until GC removes them.
func (s *Signer) Rotate(date time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.generateLocked(kidForDate(date))
	if err != nil {
		return "", err
	}
	return rec.KID, nil
}

// GC removes inactive keys created strictly before the cutoff. The
// active key is never removed. Returns the number of removed keys.
func (s *Signer) GC(olderThan time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	kept := s.keys[:0]
	for _, rec := range s.keys {
		if !rec.Active && rec.CreatedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.keys = kept
	if removed > 0 {
		logger.Debugw("garbage-collected signing keys", "removed", removed)
	}
	return removed
}

// KeyCount returns the number of keys currently held.
func (s *Signer) KeyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Sign mints a token from the payload. Any error here is fatal for the
// request and surfaces as an internal error.
func (s *Signer) Sign(payload *oauth.TokenPayload, alg Algorithm) (string, error) {
	switch alg {
	case AlgHS256:
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
		signed, err := token.SignedString(s.secret)
		if err != nil {
			return "", fmt.Errorf("failed to sign HS256 token: %w", err)
		}
		return signed, nil

	case AlgRS256:
		s.mu.Lock()
		rec, err := s.activeSigningKeyLocked()
		if err != nil {
			s.mu.Unlock()
			return "", err
		}
		kid, key := rec.KID, rec.Key
		s.mu.Unlock()

		token := jwt.NewWithClaims(jwt.SigningMethodRS256, payload)
		token.Header["kid"] = kid
		signed, err := token.SignedString(key)
		if err != nil {
			return "", fmt.Errorf("failed to sign RS256 token: %w", err)
		}
		return signed, nil

	default:
		return "", fmt.Errorf("unsupported signing algorithm %q", alg)
	}
}

// Verify decodes and validates a token of either algorithm. An expired
// but otherwise valid token returns the payload together with
// ErrExpired; any other failure returns ErrInvalidToken.
func (s *Signer) Verify(tokenString string) (*oauth.TokenPayload, error) {
	payload := &oauth.TokenPayload{}
	token, err := jwt.ParseWithClaims(tokenString, payload, s.keyFunc,
		jwt.WithValidMethods([]string{string(AlgHS256), string(AlgRS256)}),
	)

	switch {
	case err == nil && token.Valid:
		return payload, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return payload, ErrExpired
	default:
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
}

// keyFunc resolves the verification key from the token header.
func (s *Signer) keyFunc(token *jwt.Token) (any, error) {
	switch token.Method.Alg() {
	case string(AlgHS256):
		return s.secret, nil

	case string(AlgRS256):
		kid, _ := token.Header["kid"].(string)
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, rec := range s.keys {
			if rec.KID == kid {
				return &rec.Key.PublicKey, nil
			}
		}
		return nil, fmt.Errorf("unknown kid %q", kid)

	default:
		return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
	}
}

// PublicKeySet exports the public halves of all RSA keys as a JWKS.
// When the set is empty an active key is generated first, so the JWKS
// endpoint never serves an empty document.
func (s *Signer) PublicKeySet() (*jose.JSONWebKeySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.keys) == 0 {
		if _, err := s.activeSigningKeyLocked(); err != nil {
			return nil, err
		}
	}

	set := &jose.JSONWebKeySet{}
	for _, rec := range s.keys {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       &rec.Key.PublicKey,
			KeyID:     rec.KID,
			Algorithm: string(AlgRS256),
			Use:       "sig",
		})
	}
	return set, nil
}
