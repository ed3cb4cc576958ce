// Package domain describes the externally authenticated principal.
package domain

import (
	"context"
	"errors"
	"strings"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is a principal authenticated by the hosted identity provider.
// It may or may not have a User record yet.
type Identity struct {
	ID          string
	Email       string
	ProfileName string
}

// DisplayName returns the profile name, falling back to the email local part.
func (i Identity) DisplayName() string {
	if name := strings.TrimSpace(i.ProfileName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(strings.TrimSpace(i.Email), "@")
	return local
}

// Verifier turns a raw access token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Identity, error)
}
