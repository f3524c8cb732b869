package service

import "errors"

var (
	ErrValidation         = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotVerified        = errors.New("account not verified")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrResetTokenInvalid  = errors.New("invalid or expired reset token")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAlreadyVerified    = errors.New("account already verified")
	ErrNotification       = errors.New("failed to send email")
)
