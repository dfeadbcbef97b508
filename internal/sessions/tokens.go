package sessions

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidResumeToken is returned when a resume token fails signature
// verification, has expired, or doesn't carry the claims a resume token
// requires.
var ErrInvalidResumeToken = errors.New("sessions: invalid resume token")

// ResumeClaims are the JWT claims carried by a session-resume token, mirroring
// the shape of the teacher's auth package: a RegisteredClaims embed plus one
// domain-specific field.
type ResumeClaims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies session-resume tokens, letting a client
// reconnect to an in-flight ExecutionSession without re-authenticating from
// scratch.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer returns a TokenIssuer signing with HS256 using secret, with
// resume tokens valid for ttl.
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// Issue mints a signed resume token for sessionID.
func (t *TokenIssuer) Issue(sessionID string) (string, error) {
	now := time.Now()
	claims := ResumeClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign resume token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a resume token, returning the session id it
// was issued for.
func (t *TokenIssuer) Verify(tokenString string) (string, error) {
	claims := &ResumeClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidResumeToken, tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidResumeToken
	}
	if claims.SessionID == "" {
		return "", ErrInvalidResumeToken
	}
	return claims.SessionID, nil
}
