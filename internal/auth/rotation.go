// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

// Package auth is the seam to the external session/token subsystem.
// Sentinel never authenticates anyone; it only demands that a user's
// existing tokens stop working. The real session subsystem implements
// TokenRotator; VersionStore is the in-process implementation used
// when Sentinel runs embedded next to a JWT-issuing service.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clipdeck/sentinel/internal/logging"
)

// TokenRotator forces all of a user's tokens to be reissued.
type TokenRotator interface {
	ForceTokenRotation(userID, reason string) error
}

// AccountLocker signals an account lock to the auth subsystem. Used by
// the brute_force incident override.
type AccountLocker interface {
	LockAccount(userID, reason string) error
}

// ErrTokenSuperseded is returned when a token predates a forced
// rotation.
var ErrTokenSuperseded = errors.New("token superseded by forced rotation")

// versionClaim is the JWT claim carrying the token version.
const versionClaim = "tkv"

// VersionStore implements TokenRotator by bumping a per-user token
// version. Tokens embed the version at issue time; any token minted
// before the bump fails validation. Lock-free of external state:
// everything lives in memory, matching the rest of the pipeline.
type VersionStore struct {
	mu       sync.RWMutex
	versions map[string]int64
	rotated  map[string]time.Time
}

// NewVersionStore creates an empty version store.
func NewVersionStore() *VersionStore {
	return &VersionStore{
		versions: make(map[string]int64),
		rotated:  make(map[string]time.Time),
	}
}

// ForceTokenRotation invalidates every outstanding token for userID by
// bumping the user's version.
func (s *VersionStore) ForceTokenRotation(userID, reason string) error {
	if userID == "" {
		return errors.New("empty user id")
	}

	s.mu.Lock()
	s.versions[userID]++
	version := s.versions[userID]
	s.rotated[userID] = time.Now()
	s.mu.Unlock()

	logging.Warn().
		Str("user_id", userID).
		Str("reason", reason).
		Int64("version", version).
		Msg("forced token rotation")
	return nil
}

// Version returns the current token version for userID.
func (s *VersionStore) Version(userID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[userID]
}

// Claims returns the claims a token issued now must embed to survive
// validation.
func (s *VersionStore) Claims(userID string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":        userID,
		versionClaim: s.Version(userID),
		"iat":        time.Now().Unix(),
	}
}

// Validate parses tokenString with secret and checks its version claim
// against the user's current version. Returns the subject on success.
func (s *VersionStore) Validate(tokenString string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("unexpected claims type")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token missing subject")
	}

	tokenVersion := int64(0)
	if v, ok := claims[versionClaim].(float64); ok {
		tokenVersion = int64(v)
	}
	if tokenVersion < s.Version(sub) {
		return "", ErrTokenSuperseded
	}
	return sub, nil
}
