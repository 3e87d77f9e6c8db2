package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cipherroom/internal/common"
	"github.com/cipherroom/internal/cryptox"
)

// TokenPair is the result of a successful login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Register creates an account. The password never leaves the device: the
// server receives a salted argon2 verifier, plus the user's public key for
// direct-room key exchange.
func Register(ctx context.Context, hc *http.Client, baseURL, username string, password, publicKey []byte) error {
	salt := common.GenerateRandByteArray(16)
	verifier := cryptox.DeriveLocalVerifier(password, salt)

	body := map[string]any{
		"username":   username,
		"salt":       salt,
		"verifier":   verifier,
		"public_key": publicKey,
	}
	return authPost(ctx, hc, baseURL+"/api/auth/register", body, nil)
}

// Login authenticates and returns the token pair. The verifier is re-derived
// from the password and the server-stored salt.
func Login(ctx context.Context, hc *http.Client, baseURL, username string, password []byte) (*TokenPair, error) {
	var saltResp struct {
		Salt []byte `json:"salt"`
	}
	saltURL := baseURL + "/api/auth/salt?username=" + url.QueryEscape(username)
	if err := authGet(ctx, hc, saltURL, &saltResp); err != nil {
		return nil, fmt.Errorf("fetching salt: %w", err)
	}

	verifier := cryptox.DeriveLocalVerifier(password, saltResp.Salt)

	var tokens TokenPair
	body := map[string]any{"username": username, "verifier": verifier}
	if err := authPost(ctx, hc, baseURL+"/api/auth/login", body, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

func authGet(ctx context.Context, hc *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	return authDo(hc, req, out)
}

func authPost(ctx context.Context, hc *http.Client, rawURL string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return authDo(hc, req, out)
}

func authDo(hc *http.Client, req *http.Request, out any) error {
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	if err := mapStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
