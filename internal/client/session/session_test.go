package session

import (
	"testing"
	"time"

	"github.com/cipherroom/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestNew_ReadsIdentityFromClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	token := signedToken(t, jwt.MapClaims{
		"sub":  "user-42",
		"name": "alice",
		"exp":  exp.Unix(),
	})

	s, err := New("http://api", "ws://stream", token, "refresh-1")
	require.NoError(t, err)
	require.Equal(t, "user-42", s.UserID)
	require.Equal(t, "alice", s.Username)
	require.Equal(t, "refresh-1", s.RefreshToken)
	require.False(t, s.Expired(time.Now()))
	require.True(t, s.Expired(exp.Add(time.Minute)))
}

func TestNew_RejectsGarbageToken(t *testing.T) {
	_, err := New("http://api", "ws://stream", "not-a-jwt", "")
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestNew_RejectsMissingSubject(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"name": "alice"})
	_, err := New("http://api", "ws://stream", token, "")
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestExpired_NoExpClaim(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "user-42"})
	s, err := New("http://api", "ws://stream", token, "")
	require.NoError(t, err)
	require.False(t, s.Expired(time.Now().Add(100*time.Hour)))
}
