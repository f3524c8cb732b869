package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is the single outcome for every signed-token failure:
// bad signature, structural corruption, wrong purpose, or expiry. Callers
// cannot tell an expired token from a forged one.
var ErrInvalidToken = errors.New("invalid token")

type TokenPurpose string

const (
	PurposeSession     TokenPurpose = "session"
	PurposeVerifyEmail TokenPurpose = "verify_email"
)

type TokenManager struct {
	Secret     []byte
	Issuer     string
	SessionTTL time.Duration
}

type Claims struct {
	Role    string       `json:"role,omitempty"`
	Purpose TokenPurpose `json:"purpose"`
	jwt.RegisteredClaims
}

// IssueSessionToken mints the short-lived signed token carried in the
// session cookie.
func (m TokenManager) IssueSessionToken(userID string, role string) (string, time.Duration, error) {
	ttl := m.SessionTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	token, err := m.issue(userID, role, PurposeSession, ttl)
	return token, ttl, err
}

// IssueVerificationToken mints an email-verification token embedded in a URL.
func (m TokenManager) IssueVerificationToken(userID string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}
	return m.issue(userID, "", PurposeVerifyEmail, ttl)
}

func (m TokenManager) ParseSessionToken(tokenString string) (*Claims, error) {
	return m.parse(tokenString, PurposeSession)
}

// ParseVerificationToken returns the subject account id.
func (m TokenManager) ParseVerificationToken(tokenString string) (string, error) {
	claims, err := m.parse(tokenString, PurposeVerifyEmail)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (m TokenManager) issue(subject string, role string, purpose TokenPurpose, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:    role,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.Secret)
}

func (m TokenManager) parse(tokenString string, purpose TokenPurpose) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.Secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
