// Package auth provides bearer credential acquisition for the backend.
package auth

import (
	"context"
	"errors"
	"os"
	"strings"
)

// ErrNoToken is returned when no credential is available. Callers must not
// fall back to an empty token.
var ErrNoToken = errors.New("no authentication token available")

// TokenSource yields the bearer token used for REST and chat requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Static returns a TokenSource that always yields tok. An empty tok yields
// ErrNoToken.
func Static(tok string) TokenSource {
	return staticSource(normalize(tok))
}

type staticSource string

func (s staticSource) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// FromEnv returns a TokenSource that reads the named environment variable
// on every call, so rotated credentials are picked up without a restart.
func FromEnv(key string) TokenSource {
	return envSource(key)
}

type envSource string

func (e envSource) Token(ctx context.Context) (string, error) {
	tok := normalize(os.Getenv(string(e)))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// normalize strips whitespace and an optional "Bearer " prefix.
func normalize(tok string) string {
	tok = strings.TrimSpace(tok)
	tok = strings.TrimPrefix(tok, "Bearer ")
	return strings.TrimSpace(tok)
}
