package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/auth"
)

func TestJWTRoundTrip(t *testing.T) {
	s := NewJWTService("test-secret", 24)

	token, err := s.GenerateToken(auth.Account{ID: "acct-1", Username: "ada"})
	require.NoError(t, err)

	accountID, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", accountID)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTService("secret-a", 24)
	verifier := NewJWTService("secret-b", 24)

	token, err := issuer.GenerateToken(auth.Account{ID: "acct-1", Username: "ada"})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	s := NewJWTService("test-secret", -1)

	token, err := s.GenerateToken(auth.Account{ID: "acct-1", Username: "ada"})
	require.NoError(t, err)

	_, err = s.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTRejectsGarbage(t *testing.T) {
	s := NewJWTService("test-secret", 24)

	_, err := s.ValidateToken("not.a.jwt")
	assert.Error(t, err)
}
