package auth

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockKeys struct {
	byHash map[string]*APIKeyInfo
	err    error
}

func (m *mockKeys) FindByHash(_ context.Context, hash string) (*APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return info, nil
}

func (m *mockKeys) Create(_ context.Context, info *APIKeyInfo) error {
	m.byHash[info.KeyHash] = info
	return nil
}

func TestHashKey(t *testing.T) {
	a := HashKey([]byte("pepper"), "secret")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashKey([]byte("pepper"), "secret"))
	assert.NotEqual(t, a, HashKey([]byte("other"), "secret"))
	assert.NotEqual(t, a, HashKey([]byte("pepper"), "secret2"))
}

func TestAuthenticator(t *testing.T) {
	pepper := []byte("pepper")
	keys := &mockKeys{byHash: map[string]*APIKeyInfo{}}
	require.NoError(t, keys.Create(context.Background(), &APIKeyInfo{
		ID:      "k1",
		KeyHash: HashKey(pepper, "good"),
		Name:    "storefront",
		Scopes:  []string{"orders:write"},
	}))
	a := NewAuthenticator(keys, pepper)

	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{name: "valid", key: "good"},
		{name: "empty", key: "", wantErr: ErrUnauthorized},
		{name: "unknown", key: "bad", wantErr: ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := a.Authenticate(context.Background(), tt.key)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, info)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "k1", info.ID)
		})
	}
}

func TestAuthenticator_RepositoryError(t *testing.T) {
	boom := errors.New("db down")
	a := NewAuthenticator(&mockKeys{err: boom}, nil)

	_, err := a.Authenticate(context.Background(), "any")
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestAPIKeyInfo_HasScope(t *testing.T) {
	k := &APIKeyInfo{Scopes: []string{ScopeDiscountsWrite}}
	assert.True(t, k.HasScope(ScopeDiscountsWrite))
	assert.False(t, k.HasScope("orders:write"))

	admin := &APIKeyInfo{Scopes: []string{"*"}}
	assert.True(t, admin.HasScope(ScopeDiscountsWrite))
}
