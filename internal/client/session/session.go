// Package session carries the authenticated-session context the engine is
// handed at construction time. There is no ambient global state: everything
// identity-related travels inside a Session value.
package session

import (
	"fmt"
	"time"

	"github.com/cipherroom/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Session identifies the current user and the endpoints the transports talk
// to. Authentication itself happened elsewhere; the engine only consumes the
// resulting tokens.
type Session struct {
	UserID   string
	Username string

	AccessToken  string
	RefreshToken string

	// ServerURL is the base URL of the request/response API.
	ServerURL string
	// StreamURL is the websocket URL of the push channel.
	StreamURL string

	expiresAt time.Time
}

// New derives the session identity from the access token claims. The
// signature is not verified here: the token is the server's own artifact
// and the client only reads its identity and expiry from it.
func New(serverURL, streamURL, accessToken, refreshToken string) (*Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", common.ErrInvalidToken)
	}

	s := &Session{
		UserID:       sub,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ServerURL:    serverURL,
		StreamURL:    streamURL,
	}
	if name, ok := claims["name"].(string); ok {
		s.Username = name
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.expiresAt = exp.Time
	}
	return s, nil
}

// Expired reports whether the access token has passed its expiry. Tokens
// without an exp claim never report expired; the transport's refresh path
// still handles server-side rejection.
func (s *Session) Expired(now time.Time) bool {
	return !s.expiresAt.IsZero() && now.After(s.expiresAt)
}
