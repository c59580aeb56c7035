package services

import (
	"errors"
	"testing"
	"time"
)

func TestAuthService_RoundTrip(t *testing.T) {
	svc := NewAuthService("test-secret", 15*time.Minute)

	token, err := svc.GenerateToken("admin")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.Subject != "admin" {
		t.Fatalf("got subject %q, want admin", claims.Subject)
	}
}

func TestAuthService_RejectsWrongSecret(t *testing.T) {
	issuer := NewAuthService("secret-a", 15*time.Minute)
	verifier := NewAuthService("secret-b", 15*time.Minute)

	token, err := issuer.GenerateToken("admin")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := verifier.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestAuthService_RejectsExpiredToken(t *testing.T) {
	svc := NewAuthService("test-secret", -time.Minute)

	token, err := svc.GenerateToken("admin")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := svc.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("got %v, want ErrExpiredToken", err)
	}
}

func TestAuthService_RejectsGarbage(t *testing.T) {
	svc := NewAuthService("test-secret", 15*time.Minute)

	if _, err := svc.ValidateToken("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}
