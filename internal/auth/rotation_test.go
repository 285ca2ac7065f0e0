// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package auth

import (
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-signing-secret")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestForceTokenRotationBumpsVersion(t *testing.T) {
	store := NewVersionStore()

	if v := store.Version("user-1"); v != 0 {
		t.Fatalf("fresh user version = %d, want 0", v)
	}
	if err := store.ForceTokenRotation("user-1", "incident"); err != nil {
		t.Fatalf("ForceTokenRotation failed: %v", err)
	}
	if v := store.Version("user-1"); v != 1 {
		t.Errorf("version after rotation = %d, want 1", v)
	}
	if err := store.ForceTokenRotation("user-1", "again"); err != nil {
		t.Fatalf("ForceTokenRotation failed: %v", err)
	}
	if v := store.Version("user-1"); v != 2 {
		t.Errorf("version after second rotation = %d, want 2", v)
	}
	if v := store.Version("user-2"); v != 0 {
		t.Errorf("other user version = %d, want 0", v)
	}
}

func TestForceTokenRotationEmptyUser(t *testing.T) {
	store := NewVersionStore()
	if err := store.ForceTokenRotation("", "incident"); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestClaimsCarryCurrentVersion(t *testing.T) {
	store := NewVersionStore()
	store.ForceTokenRotation("user-1", "incident")

	claims := store.Claims("user-1")
	if claims["sub"] != "user-1" {
		t.Errorf("sub = %v, want user-1", claims["sub"])
	}
	if v, ok := claims["tkv"].(int64); !ok || v != 1 {
		t.Errorf("tkv = %v, want 1", claims["tkv"])
	}
}

func TestValidateAcceptsCurrentToken(t *testing.T) {
	store := NewVersionStore()
	tokenString := signToken(t, store.Claims("user-1"))

	sub, err := store.Validate(tokenString, testSecret)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if sub != "user-1" {
		t.Errorf("subject = %s, want user-1", sub)
	}
}

func TestValidateRejectsSupersededToken(t *testing.T) {
	store := NewVersionStore()
	tokenString := signToken(t, store.Claims("user-1"))

	store.ForceTokenRotation("user-1", "incident")

	_, err := store.Validate(tokenString, testSecret)
	if !errors.Is(err, ErrTokenSuperseded) {
		t.Fatalf("Validate returned %v, want ErrTokenSuperseded", err)
	}

	// A token minted after the rotation passes.
	fresh := signToken(t, store.Claims("user-1"))
	if _, err := store.Validate(fresh, testSecret); err != nil {
		t.Errorf("fresh token rejected: %v", err)
	}
}

func TestValidateRejectsBadSignature(t *testing.T) {
	store := NewVersionStore()
	tokenString := signToken(t, store.Claims("user-1"))

	if _, err := store.Validate(tokenString, []byte("wrong-secret")); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestValidateRejectsMissingSubject(t *testing.T) {
	store := NewVersionStore()
	tokenString := signToken(t, jwt.MapClaims{"tkv": int64(0)})

	if _, err := store.Validate(tokenString, testSecret); err == nil {
		t.Fatal("expected error for token without subject")
	}
}
