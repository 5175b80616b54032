// Package store links provider identities to local users. It is the backend
// of the verify step: the first login of a provider user creates a local user,
// later logins resolve to the same one.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/exactauth/internal/providers"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrInvalid  = errors.New("store: invalid identity")
)

// Identity is one provider account linked to a local user.
type Identity struct {
	UserID         string    `json:"user_id"`
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	Email          string    `json:"email,omitempty"`
	DisplayName    string    `json:"display_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastLoginAt    time.Time `json:"last_login_at"`
}

// IdentityStore persists identities.
type IdentityStore interface {
	// Resolve returns the identity for (provider, profile.ProviderID),
	// creating the local user on first sight and refreshing email and
	// display name otherwise.
	Resolve(ctx context.Context, profile *providers.UserProfile, provider string) (*Identity, error)
	// Get returns the most recently used identity of userID.
	Get(ctx context.Context, userID string) (*Identity, error)
	Ping(ctx context.Context) error
	Close()
}

func validate(profile *providers.UserProfile, provider string) error {
	if profile == nil || profile.ProviderID == "" || provider == "" {
		return ErrInvalid
	}
	return nil
}
