package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cipherroom/internal/common"
	"github.com/cipherroom/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_DerivesVerifierFromServerSalt(t *testing.T) {
	salt := []byte("0123456789abcdef")
	password := []byte("correct horse")
	wantVerifier := cryptox.DeriveLocalVerifier(password, salt)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/salt":
			assert.Equal(t, "alice", r.URL.Query().Get("username"))
			json.NewEncoder(w).Encode(map[string]any{"salt": salt})
		case "/api/auth/login":
			var req struct {
				Username string `json:"username"`
				Verifier []byte `json:"verifier"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "alice", req.Username)
			if !assert.Equal(t, base64.StdEncoding.EncodeToString(wantVerifier),
				base64.StdEncoding.EncodeToString(req.Verifier)) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(TokenPair{AccessToken: "acc", RefreshToken: "ref"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	tokens, err := Login(context.Background(), srv.Client(), srv.URL, "alice", password)
	require.NoError(t, err)
	assert.Equal(t, "acc", tokens.AccessToken)
	assert.Equal(t, "ref", tokens.RefreshToken)
}

func TestLogin_WrongPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/salt" {
			json.NewEncoder(w).Encode(map[string]any{"salt": []byte("salt-salt-salt--")})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Login(context.Background(), srv.Client(), srv.URL, "alice", []byte("wrong"))
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestRegister_SendsSaltVerifierAndPublicKey(t *testing.T) {
	kp, err := cryptox.GenerateKeypair()
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/register", r.URL.Path)
		var req struct {
			Username  string `json:"username"`
			Salt      []byte `json:"salt"`
			Verifier  []byte `json:"verifier"`
			PublicKey []byte `json:"public_key"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bob", req.Username)
		assert.Len(t, req.Salt, 16)
		assert.Equal(t, cryptox.DeriveLocalVerifier([]byte("hunter2"), req.Salt), req.Verifier)
		assert.Equal(t, kp.Public, req.PublicKey)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err = Register(context.Background(), srv.Client(), srv.URL, "bob", []byte("hunter2"), kp.Public)
	require.NoError(t, err)
}
