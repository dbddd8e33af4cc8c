package utils

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	userID := primitive.NewObjectID()
	token, err := GenerateAccessToken(userID, "alice", "rider", []string{"chat.can_moderate_messages"}, "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := ValidateToken(token, "secret")
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("expected user %s, got %s", userID.Hex(), claims.UserID.Hex())
	}
	if len(claims.Permissions) != 1 || claims.Permissions[0] != "chat.can_moderate_messages" {
		t.Errorf("unexpected permissions %v", claims.Permissions)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	token, err := GenerateAccessToken(primitive.NewObjectID(), "bob", "driver", nil, "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if _, err := ValidateToken(token, "other"); err == nil {
		t.Error("expected validation failure with wrong secret")
	}
}

func TestGenerateAccessTokenDefaultsNonPositiveTTL(t *testing.T) {
	t.Parallel()

	token, err := GenerateAccessToken(primitive.NewObjectID(), "bob", "driver", nil, "secret", -time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	// A negative TTL falls back to the default, so the token stays valid.
	if _, err := ValidateToken(token, "secret"); err != nil {
		t.Errorf("expected default TTL token to validate, got %v", err)
	}
}
