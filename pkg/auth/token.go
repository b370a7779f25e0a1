package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// TokenBytes is the entropy of generated tokens
const TokenBytes = 32

var (
	// ErrMissingCredential is returned when no bearer token was presented
	ErrMissingCredential = errors.New("missing bearer token")

	// ErrInvalidCredential is returned when the presented token does not match
	ErrInvalidCredential = errors.New("invalid bearer token")

	// ErrDisabled is returned when the expected token is not configured
	ErrDisabled = errors.New("credential not configured")
)

// GenerateToken returns a random hex token
func GenerateToken() (string, error) {
	bytes := make([]byte, TokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// ParseBearer extracts the token from an Authorization header value
func ParseBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Match compares two tokens in constant time. An empty expected token
// never matches.
func Match(presented, expected string) bool {
	if expected == "" {
		return false
	}
	// Hash first so the comparison does not leak the expected length
	p := sha256.Sum256([]byte(presented))
	e := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(p[:], e[:]) == 1
}

// CheckRequest validates the request's bearer token against expected
func CheckRequest(r *http.Request, expected string) error {
	if expected == "" {
		return ErrDisabled
	}
	token, ok := ParseBearer(r.Header.Get("Authorization"))
	if !ok {
		return ErrMissingCredential
	}
	if !Match(token, expected) {
		return ErrInvalidCredential
	}
	return nil
}
