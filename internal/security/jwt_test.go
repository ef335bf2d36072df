package security

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndParseToken(t *testing.T) {
	token, errGen := GenerateToken("secret", 7, "ops", time.Hour)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}

	claims, errParse := ParseToken("secret", token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if claims.OperatorID != 7 || claims.Username != "ops" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, errGen := GenerateToken("secret", 7, "ops", time.Hour)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}
	if _, errParse := ParseToken("other", token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", errParse)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, errGen := GenerateToken("secret", 7, "ops", -time.Minute)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}
	if _, errParse := ParseToken("secret", token); !errors.Is(errParse, ErrExpiredToken) {
		t.Fatalf("expected expired token, got %v", errParse)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, errHash := HashPassword("hunter2")
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	if !CheckPassword(hash, "hunter2") {
		t.Fatalf("correct password rejected")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatalf("wrong password accepted")
	}
}
