package server

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestMintAdminToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	token, err := MintAdminToken("hunter2", string(hash), testSecret, time.Minute)
	if err != nil {
		t.Fatalf("MintAdminToken: %v", err)
	}

	parsed, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) { return testSecret, nil })
	if err != nil || !parsed.Valid {
		t.Fatalf("minted token does not verify: %v", err)
	}
	sub, _ := parsed.Claims.GetSubject()
	if sub != "admin" {
		t.Fatalf("subject = %q", sub)
	}
}

func TestMintAdminTokenWrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if _, err := MintAdminToken("letmein", string(hash), testSecret, time.Minute); err == nil {
		t.Fatalf("expected rejection for wrong password")
	}
}

func TestMintAdminTokenWithoutHash(t *testing.T) {
	if _, err := MintAdminToken("hunter2", "", testSecret, time.Minute); err == nil {
		t.Fatalf("expected error when no hash is configured")
	}
}
