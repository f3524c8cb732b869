package service

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type AccountConfig struct {
	// Base URL the verification and reset links point at.
	AppBaseURL string

	VerifyTTL       time.Duration
	ResendVerifyTTL time.Duration
	ResetTTL        time.Duration
}

type TokenService interface {
	IssueSessionToken(userID string, role string) (string, time.Duration, error)
	IssueVerificationToken(userID string, ttl time.Duration) (string, error)
	ParseVerificationToken(token string) (string, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash string, password string) bool
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

type BcryptPasswordHasher struct {
	Cost int
}

func (h BcryptPasswordHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = 12
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func (h BcryptPasswordHasher) Verify(hash string, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
