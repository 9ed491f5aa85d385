// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when authentication fails. Implementations
// wrap it with context.
var ErrUnauthorized = errors.New("unauthorized")

// LocalUser is the identity of callers when authentication is disabled.
const LocalUser = "local-user"

// AuthInfo is the identity of an authenticated caller.
type AuthInfo struct {
	// UserID is never empty.
	UserID string

	// Roles of the caller. Unused by the open server; kept for providers
	// that map tokens to people.
	Roles []string
}

// HasRole checks if the caller has a specific role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates a bearer token and returns the caller's identity.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type AuthProvider interface {
	// Validate checks token, which may be empty when the request carried
	// no Authorization header.
	//
	// Returns:
	//   - *AuthInfo: The caller if token is valid
	//   - error: ErrUnauthorized (or wrapped) if invalid
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider accepts every caller as LocalUser.
//
// Thread-safe: This implementation has no mutable state.
type NopAuthProvider struct{}

// Validate always succeeds. The token is ignored.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{UserID: LocalUser, Roles: []string{"admin"}}, nil
}

// TokenAuthProvider accepts a single shared token.
//
// Example:
//
//	provider := NewTokenAuthProvider("s3cret")
//	info, err := provider.Validate(ctx, "s3cret")
//	// info.UserID == "token-user"
type TokenAuthProvider struct {
	token []byte
}

// NewTokenAuthProvider creates a provider for token. An empty token
// rejects every request.
func NewTokenAuthProvider(token string) *TokenAuthProvider {
	return &TokenAuthProvider{token: []byte(token)}
}

// Validate compares in constant time.
func (p *TokenAuthProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	if len(p.token) == 0 || token == "" {
		return nil, fmt.Errorf("missing bearer token: %w", ErrUnauthorized)
	}
	if subtle.ConstantTimeCompare(p.token, []byte(token)) != 1 {
		return nil, fmt.Errorf("invalid bearer token: %w", ErrUnauthorized)
	}
	return &AuthInfo{UserID: "token-user", Roles: []string{"admin"}}, nil
}

var (
	_ AuthProvider = (*NopAuthProvider)(nil)
	_ AuthProvider = (*TokenAuthProvider)(nil)
)
