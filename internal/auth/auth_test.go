package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTIssueAndValidate(t *testing.T) {
	mgr, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, exp, err := mgr.IssueToken("operator-1", RoleKeeper)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator-1", claims.Identity)
	assert.Equal(t, RoleKeeper, claims.Role)
	assert.Equal(t, "thenest", claims.Issuer)
}

func TestJWTRejectsForeignSignature(t *testing.T) {
	issuer, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	verifier, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := issuer.IssueToken("operator-1", RoleObserver)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTRejectsExpired(t *testing.T) {
	mgr, err := NewJWTManager("", "", -time.Minute)
	require.NoError(t, err)

	token, _, err := mgr.IssueToken("operator-1", RoleKeeper)
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTRejectsGarbage(t *testing.T) {
	mgr, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	_, err = mgr.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestAPIKeyHashing(t *testing.T) {
	hash, err := HashAPIKey("s3cret")
	require.NoError(t, err)

	ok, err := VerifyAPIKey("s3cret", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyAPIKey("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyAPIKey("s3cret", "malformed")
	assert.Error(t, err)

	// Salted: the same key never hashes to the same string twice.
	hash2, err := HashAPIKey("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}

func TestKeyring(t *testing.T) {
	k := NewKeyring()
	assert.True(t, k.Empty())

	require.NoError(t, k.Seed("keeper", "key-1", RoleKeeper))
	assert.False(t, k.Empty())

	role, ok := k.Verify("keeper", "key-1")
	assert.True(t, ok)
	assert.Equal(t, RoleKeeper, role)

	_, ok = k.Verify("keeper", "wrong")
	assert.False(t, ok)

	_, ok = k.Verify("nobody", "key-1")
	assert.False(t, ok)

	// Re-seeding replaces the key.
	require.NoError(t, k.Seed("keeper", "key-2", RoleObserver))
	_, ok = k.Verify("keeper", "key-1")
	assert.False(t, ok)
	role, ok = k.Verify("keeper", "key-2")
	assert.True(t, ok)
	assert.Equal(t, RoleObserver, role)
}
