package auth

import (
	"context"
	"errors"
	"testing"
)

func TestStatic(t *testing.T) {
	tok, err := Static("abc123").Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "abc123" {
		t.Fatalf("unexpected token: %q", tok)
	}
}

func TestStaticNormalizes(t *testing.T) {
	tok, err := Static("  Bearer abc123 ").Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "abc123" {
		t.Fatalf("prefix not stripped: %q", tok)
	}
}

func TestStaticEmpty(t *testing.T) {
	_, err := Static("").Token(context.Background())
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("TEST_CHAT_TOKEN", "Bearer xyz")
	src := FromEnv("TEST_CHAT_TOKEN")

	tok, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "xyz" {
		t.Fatalf("unexpected token: %q", tok)
	}

	// Rotation is picked up on the next call.
	t.Setenv("TEST_CHAT_TOKEN", "rotated")
	tok, _ = src.Token(context.Background())
	if tok != "rotated" {
		t.Fatalf("rotated token not picked up: %q", tok)
	}
}

func TestFromEnvMissing(t *testing.T) {
	t.Setenv("TEST_CHAT_TOKEN", "")
	_, err := FromEnv("TEST_CHAT_TOKEN").Token(context.Background())
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}
