package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload the backend embeds in its access tokens
type Claims struct {
	jwt.RegisteredClaims

	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
}

// decodeToken reads the token payload without verifying the signature.
// The result is a display hint only: the backend re-validates the token
// on every request and stays the authority on identity and expiry.
func decodeToken(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return claims, nil
}

// sessionFromToken derives a Session from token, failing when the payload
// cannot be decoded or the embedded expiry is not in the future.
func sessionFromToken(token string, now time.Time) (Session, error) {
	claims, err := decodeToken(token)
	if err != nil {
		return Session{}, err
	}

	s := Session{
		Token:   token,
		Subject: claims.Subject,
		Email:   claims.Email,
	}
	if s.Subject == "" {
		s.Subject = claims.UserID
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
		if !s.ExpiresAt.After(now) {
			return Session{}, ErrTokenExpired
		}
	}
	return s, nil
}
