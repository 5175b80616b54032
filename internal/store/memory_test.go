package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/exactauth/internal/providers"
)

func TestMemory_ResolveIsStable(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	first, err := s.Resolve(ctx, &providers.UserProfile{ProviderID: "u-1", Email: "a@x.nl", Name: "A"}, "exact")
	require.NoError(t, err)
	require.NotEmpty(t, first.UserID)

	again, err := s.Resolve(ctx, &providers.UserProfile{ProviderID: "u-1", Email: "new@x.nl", Name: "A B"}, "exact")
	require.NoError(t, err)
	assert.Equal(t, first.UserID, again.UserID)
	assert.Equal(t, "new@x.nl", again.Email)
	assert.Equal(t, first.CreatedAt, again.CreatedAt)

	other, err := s.Resolve(ctx, &providers.UserProfile{ProviderID: "u-1"}, "google")
	require.NoError(t, err)
	assert.NotEqual(t, first.UserID, other.UserID)

	got, err := s.Get(ctx, first.UserID)
	require.NoError(t, err)
	assert.Equal(t, "A B", got.DisplayName)
}

func TestMemory_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.Resolve(ctx, nil, "exact")
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.Resolve(ctx, &providers.UserProfile{}, "exact")
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.Get(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
